package audit

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestLogger(t *testing.T) *SQLiteLogger {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	l := NewSQLiteLogger(sqlDB, nil)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return l
}

func TestMiddleware(t *testing.T) {
	l := openTestLogger(t)

	ok := Middleware(l, "evaluate_statement")(func(_ context.Context, req any) (any, error) {
		return map[string]string{"id": "abc"}, nil
	})
	bad := Middleware(l, "get_evaluation")(func(context.Context, any) (any, error) {
		return nil, errors.New("not found")
	})

	ctx := WithCaller(context.Background(), Caller{Transport: TransportMCP, UserID: "u1", RequestID: "r1"})
	if _, err := ok(ctx, map[string]string{"statement": "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := bad(context.Background(), map[string]string{"id": "zzz"}); err == nil {
		t.Fatal("expected error to pass through")
	}
	l.Close()

	entries, err := l.Recent(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	byAction := map[string]Entry{}
	for _, e := range entries {
		byAction[e.Action] = e
	}
	e := byAction["evaluate_statement"]
	if e.Status != "success" || e.Transport != TransportMCP || e.UserID != "u1" || e.RequestID != "r1" {
		t.Errorf("success entry = %+v", e)
	}
	if e.Parameters != `{"statement":"x"}` || e.Result != `{"id":"abc"}` {
		t.Errorf("params/result = %q / %q", e.Parameters, e.Result)
	}
	if !strings.HasPrefix(e.EntryID, "aud_") {
		t.Errorf("entry id = %q", e.EntryID)
	}

	e = byAction["get_evaluation"]
	if e.Status != "error" || e.Error != "not found" || e.Transport != TransportHTTP {
		t.Errorf("error entry = %+v", e)
	}

	only, err := l.Recent(context.Background(), Query{Action: "get_evaluation"})
	if err != nil || len(only) != 1 {
		t.Errorf("filtered = %v, %v", only, err)
	}
	mine, err := l.Recent(context.Background(), Query{UserID: "u1"})
	if err != nil || len(mine) != 1 || mine[0].Action != "evaluate_statement" {
		t.Errorf("by user = %v, %v", mine, err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc...(truncated)" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Errorf("truncate = %q", got)
	}
}
