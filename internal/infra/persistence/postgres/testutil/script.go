// Package testutil provides a scripted database/sql driver. Tests register a
// responder per statement prefix and inspect what ran afterwards.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Reply is what a responder returns for one statement.
type Reply struct {
	Columns []string
	Rows    [][]driver.Value
	Err     error
}

// Responder answers a statement given its arguments.
type Responder func(args []driver.Value) Reply

// Call is one statement seen by the driver, whitespace collapsed.
type Call struct {
	Query string
	Args  []driver.Value
}

type route struct {
	prefix  string
	respond Responder
}

// Script is a driver.Connector whose connections answer from registered
// responders. Unscripted statements fail.
type Script struct {
	mu     sync.Mutex
	routes []route
	calls  []Call

	PingErr   error
	BeginErr  error
	CommitErr error

	commits   int
	rollbacks int
}

// NewScript returns an empty script.
func NewScript() *Script { return &Script{} }

// On routes statements starting with prefix to r. Later routes win.
func (s *Script) On(prefix string, r Responder) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append([]route{{prefix: normalize(prefix), respond: r}}, s.routes...)
	return s
}

// DB opens a pool over the script.
func (s *Script) DB() *sql.DB { return sql.OpenDB(s) }

// Calls returns the statements executed so far.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Commits and Rollbacks count finished transactions.
func (s *Script) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Script) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

func (s *Script) Connect(context.Context) (driver.Conn, error) { return &conn{script: s}, nil }

func (s *Script) Driver() driver.Driver { return scriptDriver{s} }

func (s *Script) answer(query string, named []driver.NamedValue) Reply {
	q := normalize(query)
	args := make([]driver.Value, len(named))
	for i, nv := range named {
		args[i] = nv.Value
	}
	s.mu.Lock()
	s.calls = append(s.calls, Call{Query: q, Args: args})
	var respond Responder
	for _, r := range s.routes {
		if strings.HasPrefix(q, r.prefix) {
			respond = r.respond
			break
		}
	}
	s.mu.Unlock()
	if respond == nil {
		return Reply{Err: fmt.Errorf("unscripted statement: %s", q)}
	}
	return respond(args)
}

func normalize(q string) string { return strings.Join(strings.Fields(q), " ") }

type scriptDriver struct{ s *Script }

func (d scriptDriver) Open(string) (driver.Conn, error) { return &conn{script: d.s}, nil }

type conn struct{ script *Script }

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("scripted driver does not prepare statements")
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if err := c.script.BeginErr; err != nil {
		return nil, err
	}
	return &tx{script: c.script}, nil
}

func (c *conn) Ping(context.Context) error { return c.script.PingErr }

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	reply := c.script.answer(query, args)
	if reply.Err != nil {
		return nil, reply.Err
	}
	return driver.RowsAffected(len(reply.Rows)), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	reply := c.script.answer(query, args)
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &rows{columns: reply.Columns, values: reply.Rows}, nil
}

type tx struct{ script *Script }

func (t *tx) Commit() error {
	t.script.mu.Lock()
	defer t.script.mu.Unlock()
	if t.script.CommitErr != nil {
		return t.script.CommitErr
	}
	t.script.commits++
	return nil
}

func (t *tx) Rollback() error {
	t.script.mu.Lock()
	defer t.script.mu.Unlock()
	t.script.rollbacks++
	return nil
}

type rows struct {
	columns []string
	values  [][]driver.Value
	next    int
}

func (r *rows) Columns() []string { return r.columns }

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}
