package mysql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BruceJL/mysql-json-bridge/pkg/tenant"
)

var errClosed = errors.New("driver: bad connection")

// resolverFunc adapts a function to the Resolver interface.
type resolverFunc func(identifier string) (tenant.Descriptor, error)

func (f resolverFunc) Resolve(identifier string) (tenant.Descriptor, error) {
	return f(identifier)
}

func staticResolver(descs ...tenant.Descriptor) Resolver {
	return resolverFunc(func(identifier string) (tenant.Descriptor, error) {
		for _, d := range descs {
			if d.Identifier == identifier {
				return d, nil
			}
		}
		return tenant.Descriptor{}, tenant.ErrUnknownTenant
	})
}

func mockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestAcquireUnknownTenant(t *testing.T) {
	m := NewPoolManager(staticResolver(), nil)

	_, err := m.Acquire(context.Background(), "nope")
	assert.ErrorIs(t, err, tenant.ErrUnknownTenant)
}

func TestAcquireCachesHandle(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectPing() // open
	mock.ExpectPing() // cached-handle liveness check on second acquire

	opened := 0
	m := NewPoolManager(staticResolver(tenant.Descriptor{Identifier: "alpha"}), nil)
	m.open = func(dsn string) (*sqlx.DB, error) {
		opened++
		return db, nil
	}

	ctx := context.Background()
	first, err := m.Acquire(ctx, "alpha")
	require.NoError(t, err)

	second, err := m.Acquire(ctx, "alpha")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, opened)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquirePinsSingleConnection(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectPing()

	m := NewPoolManager(staticResolver(tenant.Descriptor{Identifier: "alpha"}), nil)
	m.open = func(dsn string) (*sqlx.DB, error) { return db, nil }

	conn, err := m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)

	// LAST_INSERT_ID() is connection-scoped: a second pooled connection would
	// let an insert and its id read land on different connections
	assert.Equal(t, 1, conn.DB.Stats().MaxOpenConnections)
}

func TestAcquireReplacesDeadHandle(t *testing.T) {
	dead, deadMock := mockDB(t)
	deadMock.ExpectPing()                            // open
	deadMock.ExpectPing().WillReturnError(errClosed) // liveness check fails
	deadMock.ExpectClose()

	fresh, freshMock := mockDB(t)
	freshMock.ExpectPing()

	handles := []*sqlx.DB{dead, fresh}
	m := NewPoolManager(staticResolver(tenant.Descriptor{Identifier: "alpha"}), nil)
	m.open = func(dsn string) (*sqlx.DB, error) {
		db := handles[0]
		handles = handles[1:]
		return db, nil
	}

	ctx := context.Background()
	first, err := m.Acquire(ctx, "alpha")
	require.NoError(t, err)

	second, err := m.Acquire(ctx, "alpha")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.NoError(t, deadMock.ExpectationsWereMet())
	assert.NoError(t, freshMock.ExpectationsWereMet())
}

func TestInvalidate(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectPing()
	mock.ExpectClose()

	m := NewPoolManager(staticResolver(tenant.Descriptor{Identifier: "alpha"}), nil)
	m.open = func(dsn string) (*sqlx.DB, error) { return db, nil }

	_, err := m.Acquire(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, m.List())

	m.Invalidate("alpha")
	assert.Empty(t, m.List())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDSN(t *testing.T) {
	got := dsn(tenant.Descriptor{
		Identifier: "alpha",
		Host:       "db1.internal:3306",
		Database:   "alpha_db",
		User:       "alpha_user",
		Password:   "alpha_pass",
	})

	assert.Equal(t, "alpha_user:alpha_pass@tcp(db1.internal:3306)/alpha_db?parseTime=true", got)
}
