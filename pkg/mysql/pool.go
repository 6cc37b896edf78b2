// Package mysql owns the per-tenant database handles and runs statements
// against them. A handle is opened lazily on first use, pinned to a single
// physical connection, reused while it answers ping, and replaced when found
// broken. Statements against one tenant are serialized by a per-connection
// mutex; different tenants proceed in parallel.
package mysql

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/BruceJL/mysql-json-bridge/pkg/metrics"
	"github.com/BruceJL/mysql-json-bridge/pkg/tenant"
)

// Resolver maps a tenant identifier to a connection descriptor.
type Resolver interface {
	Resolve(identifier string) (tenant.Descriptor, error)
}

// Conn pairs a tenant's database handle with the mutex that serializes
// statement execution against it.
type Conn struct {
	Tenant string
	DB     *sqlx.DB
	mu     sync.Mutex
}

// PoolManager caches one live database handle per tenant identifier.
type PoolManager struct {
	resolver Resolver
	conns    map[string]*Conn
	logger   *zap.Logger
	// open is swapped out in tests
	open func(dsn string) (*sqlx.DB, error)
	mu   sync.Mutex
}

func NewPoolManager(resolver Resolver, logger *zap.Logger) *PoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolManager{
		resolver: resolver,
		conns:    make(map[string]*Conn),
		logger:   logger,
		open: func(dsn string) (*sqlx.DB, error) {
			return sqlx.Open("mysql", dsn)
		},
	}
}

// Acquire returns the cached handle for the identifier if it is still alive,
// opening and caching a new one otherwise. The manager lock serializes the
// check-then-create sequence, so concurrent acquisition for one identifier
// never produces two handles.
func (m *PoolManager) Acquire(ctx context.Context, identifier string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.conns[identifier]; ok {
		if err := conn.DB.PingContext(ctx); err == nil {
			return conn, nil
		}
		m.logger.Warn("cached handle is dead, reconnecting", zap.String("tenant", identifier))
		conn.DB.Close()
		delete(m.conns, identifier)
	}

	desc, err := m.resolver.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	db, err := m.open(dsn(desc))
	if err != nil {
		return nil, fmt.Errorf("open tenant %q: %w", identifier, err)
	}
	// LAST_INSERT_ID() is scoped to one physical connection, so the handle is
	// pinned to exactly one; a second pooled connection would let an insert
	// and its id read land on different connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping tenant %q: %w", identifier, err)
	}

	conn := &Conn{Tenant: identifier, DB: db}
	m.conns[identifier] = conn
	metrics.ConnectionsOpened.WithLabelValues(identifier).Inc()
	m.logger.Info("opened database handle",
		zap.String("tenant", identifier), zap.String("host", desc.Host), zap.String("database", desc.Database))
	return conn, nil
}

// Invalidate drops the cached handle for an identifier, closing it.
func (m *PoolManager) Invalidate(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.conns[identifier]; ok {
		conn.DB.Close()
		delete(m.conns, identifier)
	}
}

// Close closes all cached handles. Used at process shutdown.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conn := range m.conns {
		conn.DB.Close()
	}
	m.conns = make(map[string]*Conn)
}

// List returns the identifiers with a cached handle.
func (m *PoolManager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	return names
}

// dsn builds the driver connection string for a descriptor. parseTime makes
// DATETIME columns scan as time.Time; auto-commit is the MySQL default, so
// every statement commits immediately.
func dsn(desc tenant.Descriptor) string {
	cfg := mysql.NewConfig()
	cfg.User = desc.User
	cfg.Passwd = desc.Password
	cfg.Net = "tcp"
	cfg.Addr = desc.Host
	cfg.DBName = desc.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}
