package mysql

import (
	"context"
	"sync"
)

// columnsQuery loads the allow-list for the connection's own database.
const columnsQuery = `SELECT table_name, column_name FROM information_schema.columns WHERE table_schema = DATABASE()`

// SchemaCache caches each tenant's table and column names, loaded from
// information_schema on first use. Every identifier interpolated into
// statement text must pass through this allow-list. A lookup miss triggers a
// reload so tables created after startup are picked up without a restart.
type SchemaCache struct {
	tenants map[string]map[string]map[string]struct{} // tenant -> table -> column set
	mu      sync.RWMutex
}

func NewSchemaCache() *SchemaCache {
	return &SchemaCache{tenants: make(map[string]map[string]map[string]struct{})}
}

// Table returns the column set for a table, or false when the tenant's
// database has no such table.
func (c *SchemaCache) Table(ctx context.Context, conn *Conn, table string) (map[string]struct{}, bool, error) {
	c.mu.RLock()
	tables, loaded := c.tenants[conn.Tenant]
	columns, ok := tables[table]
	c.mu.RUnlock()

	if loaded && ok {
		return columns, true, nil
	}

	// miss: reload this tenant's schema and look again
	if err := c.reload(ctx, conn); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	columns, ok = c.tenants[conn.Tenant][table]
	c.mu.RUnlock()
	return columns, ok, nil
}

// HasColumn reports whether the table exists and carries the column.
func (c *SchemaCache) HasColumn(ctx context.Context, conn *Conn, table, column string) (bool, error) {
	columns, ok, err := c.Table(ctx, conn, table)
	if err != nil || !ok {
		return false, err
	}
	_, ok = columns[column]
	return ok, nil
}

// Invalidate drops a tenant's cached schema.
func (c *SchemaCache) Invalidate(tenant string) {
	c.mu.Lock()
	delete(c.tenants, tenant)
	c.mu.Unlock()
}

func (c *SchemaCache) reload(ctx context.Context, conn *Conn) error {
	rows, err := conn.DB.QueryContext(ctx, columnsQuery)
	if err != nil {
		return &DatabaseError{Err: err}
	}
	defer rows.Close()

	tables := make(map[string]map[string]struct{})
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return &DatabaseError{Err: err}
		}
		if tables[table] == nil {
			tables[table] = make(map[string]struct{})
		}
		tables[table][column] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return &DatabaseError{Err: err}
	}

	c.mu.Lock()
	c.tenants[conn.Tenant] = tables
	c.mu.Unlock()
	return nil
}
