package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BruceJL/mysql-json-bridge/pkg/metrics"
)

// Statement is SQL text plus its positional parameters. Identifiers are
// embedded in Text; values are always bound through Args, and the placeholder
// count matches len(Args).
type Statement struct {
	Text string
	Args []any
}

// Row maps column names to driver scalar values for one result row.
type Row map[string]any

const (
	lastInsertIDQuery  = "SELECT LAST_INSERT_ID();"
	lastInsertIDColumn = "LAST_INSERT_ID()"
)

// ErrNoLastInsertID is returned when the server reports no id after an
// insert.
var ErrNoLastInsertID = errors.New("server did not report an insert id")

// DatabaseError wraps a driver-reported failure. Handlers surface it as a
// generic 500 without leaking statement text to the client.
type DatabaseError struct {
	Err error
}

func (e *DatabaseError) Error() string {
	return "database error: " + e.Err.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Executor runs statements against tenant connections. Execution against one
// connection is serialized by that connection's mutex; the lock is held from
// execute through fetching the last row, so statements never interleave at
// the row-fetch level.
type Executor struct {
	logger *zap.Logger
}

func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// Execute runs a statement and fetches all resulting rows. There are no
// automatic retries; a failed statement is logged once with its text and
// parameters and reported as a DatabaseError.
func (e *Executor) Execute(ctx context.Context, conn *Conn, stmt Statement) ([]Row, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return e.execute(ctx, conn, stmt)
}

// Insert runs an insert, reads the id the server assigned, and fetches the
// fresh row with the statement fetch builds from that id. All three run as
// one critical section on the connection: LAST_INSERT_ID() is scoped to the
// connection, and a concurrent insert between the statements would swap id
// attribution.
func (e *Executor) Insert(ctx context.Context, conn *Conn, stmt Statement, fetch func(id string) Statement) ([]Row, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if _, err := e.execute(ctx, conn, stmt); err != nil {
		return nil, err
	}

	idRows, err := e.execute(ctx, conn, Statement{Text: lastInsertIDQuery})
	if err != nil {
		return nil, err
	}
	if len(idRows) == 0 {
		return nil, ErrNoLastInsertID
	}
	id := fmt.Sprint(idRows[0][lastInsertIDColumn])

	return e.execute(ctx, conn, fetch(id))
}

// execute assumes the connection mutex is held.
func (e *Executor) execute(ctx context.Context, conn *Conn, stmt Statement) ([]Row, error) {
	start := time.Now()
	metrics.StatementsTotal.WithLabelValues(conn.Tenant).Inc()

	e.logger.Debug("executing statement",
		zap.String("tenant", conn.Tenant), zap.String("sql", stmt.Text), zap.Any("args", stmt.Args))

	rows, err := conn.DB.QueryxContext(ctx, stmt.Text, stmt.Args...)
	if err != nil {
		return nil, e.fail(conn.Tenant, stmt, err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, e.fail(conn.Tenant, stmt, err)
	}
	dbTypes := make(map[string]string, len(columnTypes))
	for _, ct := range columnTypes {
		dbTypes[ct.Name()] = ct.DatabaseTypeName()
	}

	results := []Row{}
	for rows.Next() {
		row := Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, e.fail(conn.Tenant, stmt, err)
		}
		normalizeRow(row, dbTypes)
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, e.fail(conn.Tenant, stmt, err)
	}

	metrics.StatementDuration.WithLabelValues(conn.Tenant).Observe(time.Since(start).Seconds())
	e.logger.Debug("statement returned rows",
		zap.String("tenant", conn.Tenant), zap.Int("count", len(results)))
	return results, nil
}

// normalizeRow turns the driver's raw byte values into typed scalars: DECIMAL
// columns become fixed-point decimals, text-backed columns become strings.
// Binary columns stay as raw bytes; the response composer nulls them out
// rather than emitting invalid UTF-8. Without this, every text column would
// serialize as base64.
func normalizeRow(row Row, dbTypes map[string]string) {
	for column, value := range row {
		raw, ok := value.([]byte)
		if !ok {
			continue
		}
		switch dbTypes[column] {
		case "DECIMAL", "NEWDECIMAL":
			if d, err := decimal.NewFromString(string(raw)); err == nil {
				row[column] = d
				continue
			}
			row[column] = string(raw)
		case "BINARY", "VARBINARY", "BIT", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "GEOMETRY":
			// no JSON form for raw bytes
		default:
			row[column] = string(raw)
		}
	}
}

func (e *Executor) fail(tenant string, stmt Statement, err error) error {
	metrics.StatementErrors.WithLabelValues(tenant).Inc()
	e.logger.Error("statement failed",
		zap.String("tenant", tenant),
		zap.String("sql", stmt.Text),
		zap.Any("args", stmt.Args),
		zap.Error(err))
	return &DatabaseError{Err: err}
}
