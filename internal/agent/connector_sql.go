package agent

import (
	"context"
	"database/sql"
	"sync"

	"github.com/modernreader/sensoria/internal/fault"
)

// SQLConnector exposes sql.query and sql.execute over a database/sql handle.
// The driver is chosen by the caller (the app wires it to the same SQLite
// file as the memory store).
type SQLConnector struct {
	name   string
	driver string
	dsn    string
	policy RetryPolicy

	mu sync.Mutex
	db *sql.DB
}

var _ Connector = (*SQLConnector)(nil)

// SQLOption is a functional option for [NewSQL].
type SQLOption func(*SQLConnector)

// WithSQLPolicy overrides the retry policy.
func WithSQLPolicy(p RetryPolicy) SQLOption {
	return func(c *SQLConnector) { c.policy = p }
}

// NewSQL creates a SQL connector for the given driver and DSN. The database
// handle opens on Connect.
func NewSQL(name, driver, dsn string, opts ...SQLOption) (*SQLConnector, error) {
	if name == "" || driver == "" || dsn == "" {
		return nil, fault.New(fault.InvalidArgument, "agent: sql connector needs name, driver, and dsn")
	}
	c := &SQLConnector{
		name:   name,
		driver: driver,
		dsn:    dsn,
		policy: DefaultRetryPolicy(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *SQLConnector) Name() string        { return c.name }
func (c *SQLConnector) Policy() RetryPolicy { return c.policy }

// Connect opens and pings the database handle. Idempotent.
func (c *SQLConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}
	db, err := sql.Open(c.driver, c.dsn)
	if err != nil {
		return fault.Wrap(fault.Internal, err, "agent: open %s database", c.driver)
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fault.Wrap(fault.UpstreamUnavailable, err, "agent: ping %s database", c.driver)
	}
	c.db = db
	return nil
}

// Disconnect closes the database handle. Idempotent.
func (c *SQLConnector) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Query performs sql.query and returns the rows as maps keyed by column.
func (c *SQLConnector) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout())
	defer cancel()

	rows, err := db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "agent: sql.query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "agent: sql.query columns")
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fault.Wrap(fault.Internal, err, "agent: sql.query scan")
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "agent: sql.query rows")
	}
	return out, nil
}

// Execute performs sql.execute and returns the affected row count.
func (c *SQLConnector) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	db, err := c.handle()
	if err != nil {
		return 0, err
	}

	execCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout())
	defer cancel()

	res, err := db.ExecContext(execCtx, query, args...)
	if err != nil {
		return 0, fault.Wrap(fault.Internal, err, "agent: sql.execute")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fault.Wrap(fault.Internal, err, "agent: sql.execute rows affected")
	}
	return n, nil
}

func (c *SQLConnector) handle() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, fault.New(fault.Internal, "agent: sql connector %q is not connected", c.name)
	}
	return c.db, nil
}
