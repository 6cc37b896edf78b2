package rest

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/buger/jsonparser"

	"github.com/BruceJL/mysql-json-bridge/pkg/mysql"
)

var (
	// identifiers are interpolated into statement text, so only
	// identifier-safe characters are allowed through
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	// ISO-8601 with millisecond precision and a trailing UTC marker, the only
	// string shape that gets coerced before binding
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)
)

// nowSentinel is a protocol convention: clients submit the epoch start to ask
// the server to stamp the current time. The trigger value is surprising but
// deployed clients rely on it, so it is preserved exactly.
const nowSentinel = "1970-01-01T00:00:00.000Z"

const (
	isoMillisLayout = "2006-01-02T15:04:05.000Z"
	mysqlTimeLayout = "2006-01-02 15:04:05"
)

var errNoColumns = errors.New("no non-null columns in request body")

// Field is one column/value pair from the request body. Order matters: the
// statement builder preserves the client's key order.
type Field struct {
	Column string
	Value  any
}

// parseFields extracts the column/value pairs nested under the resource key
// of a request body, in document order. Go maps would lose that order, hence
// the token-level walk.
func parseFields(body []byte, resource string) ([]Field, error) {
	inner, dataType, _, err := jsonparser.Get(body, resource)
	if err != nil {
		return nil, fmt.Errorf("request body has no %q object: %w", resource, err)
	}
	if dataType != jsonparser.Object {
		return nil, fmt.Errorf("request body %q is not an object", resource)
	}

	var fields []Field
	err = jsonparser.ObjectEach(inner, func(key []byte, value []byte, vt jsonparser.ValueType, _ int) error {
		parsed, err := parseScalar(value, vt)
		if err != nil {
			return fmt.Errorf("column %q: %w", string(key), err)
		}
		fields = append(fields, Field{Column: string(key), Value: parsed})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func parseScalar(value []byte, vt jsonparser.ValueType) (any, error) {
	switch vt {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		if i, err := jsonparser.ParseInt(value); err == nil {
			return i, nil
		}
		return jsonparser.ParseFloat(value)
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Null:
		return nil, nil
	default:
		// nested objects and arrays pass through as their raw text
		return string(value), nil
	}
}

// listStatement fetches a full table.
func listStatement(table string) mysql.Statement {
	return mysql.Statement{Text: "SELECT * FROM `" + table + "`;"}
}

// getStatement fetches one row by primary key. The id is bound as the raw
// string received from the path.
func getStatement(table, id string) mysql.Statement {
	return mysql.Statement{
		Text: "SELECT * FROM `" + table + "` WHERE `id` = ?;",
		Args: []any{id},
	}
}

// includeStatement fetches rows of a related table that reference the
// primary table through a foreign-key column literally named after it.
func includeStatement(includeTable, primaryTable, id string) mysql.Statement {
	return mysql.Statement{
		Text: "SELECT * FROM `" + includeTable + "` WHERE `" + primaryTable + "` = ?;",
		Args: []any{id},
	}
}

// insertStatement builds `INSERT INTO t SET c1 = ?, ...` from body fields in
// input order. Null-valued fields are omitted entirely rather than set to
// NULL.
func insertStatement(table string, fields []Field, now func() time.Time) (mysql.Statement, error) {
	assignments, args := assignmentList(fields, now)
	if len(args) == 0 {
		return mysql.Statement{}, errNoColumns
	}
	return mysql.Statement{
		Text: "INSERT INTO `" + table + "` SET " + assignments + ";",
		Args: args,
	}, nil
}

// updateStatement builds `UPDATE t SET ... WHERE id = ?` with the id appended
// as the final parameter.
func updateStatement(table string, fields []Field, id string, now func() time.Time) (mysql.Statement, error) {
	assignments, args := assignmentList(fields, now)
	if len(args) == 0 {
		return mysql.Statement{}, errNoColumns
	}
	return mysql.Statement{
		Text: "UPDATE `" + table + "` SET " + assignments + " WHERE `id` = ?;",
		Args: append(args, id),
	}, nil
}

func assignmentList(fields []Field, now func() time.Time) (string, []any) {
	var assignments string
	var args []any
	for _, f := range fields {
		if f.Value == nil {
			continue
		}
		if assignments != "" {
			assignments += ", "
		}
		assignments += "`" + f.Column + "` = ?"
		args = append(args, coerceValue(f.Value, now))
	}
	return assignments, args
}

// coerceValue rewrites timestamp-shaped strings to the database's DATETIME
// text form; the epoch sentinel becomes the current server time. Everything
// else passes through unchanged.
func coerceValue(v any, now func() time.Time) any {
	s, ok := v.(string)
	if !ok || !timestampPattern.MatchString(s) {
		return v
	}
	if s == nowSentinel {
		return now().Format(mysqlTimeLayout)
	}
	t, err := time.Parse(isoMillisLayout, s)
	if err != nil {
		return s
	}
	return t.Format(mysqlTimeLayout)
}

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
