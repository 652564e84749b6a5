package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

func TestScriptRoutesByNormalizedPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewScript().
		On("SELECT name FROM", func(args []driver.Value) Reply {
			return Reply{Columns: []string{"name"}, Rows: [][]driver.Value{{args[0]}}}
		}).
		On("SELECT name FROM special", func([]driver.Value) Reply {
			return Reply{Err: errors.New("special")}
		})
	db := s.DB()
	defer db.Close()

	var name string
	if err := db.QueryRowContext(ctx, "SELECT   name\n FROM t WHERE x = $1", "wall").Scan(&name); err != nil {
		t.Fatalf("query: %v", err)
	}
	if name != "wall" {
		t.Fatalf("unexpected name %q", name)
	}
	if _, err := db.QueryContext(ctx, "SELECT name FROM special"); err == nil || err.Error() != "special" {
		t.Fatalf("expected the later route to win, got %v", err)
	}
	if _, err := db.ExecContext(ctx, "DROP TABLE t"); err == nil {
		t.Fatalf("expected unscripted statement error")
	}
	calls := s.Calls()
	if len(calls) != 3 || calls[0].Query != "SELECT name FROM t WHERE x = $1" || calls[0].Args[0] != "wall" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestScriptTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewScript().On("UPDATE", func([]driver.Value) Reply { return Reply{} })
	db := s.DB()
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE t SET x = 1"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	tx, _ = db.BeginTx(ctx, nil)
	_ = tx.Rollback()
	if s.Commits() != 1 || s.Rollbacks() != 1 {
		t.Fatalf("commits=%d rollbacks=%d", s.Commits(), s.Rollbacks())
	}

	s.BeginErr = errors.New("no tx")
	if _, err := db.BeginTx(ctx, nil); err == nil {
		t.Fatalf("expected begin error")
	}
	s.PingErr = errors.New("down")
	if err := db.PingContext(ctx); err == nil {
		t.Fatalf("expected ping error")
	}
}
