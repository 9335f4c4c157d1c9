package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/retaillens/internal/config"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pg code", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: customer.customer_id"), want: true},
		{name: "other", err: errors.New("syntax error"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestIsConnectivityErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "sentinel", err: fmt.Errorf("%w: ping", ErrUnavailable), want: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: true},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), want: true},
		{name: "constraint", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsConnectivityErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDialect(t *testing.T) {
	for _, typ := range []string{"postgres", "mysql", "sqlite"} {
		if _, err := Dialect(config.Config{DBType: typ, DBName: "retail"}); err != nil {
			t.Fatalf("dialect %s: %v", typ, err)
		}
	}
	if _, err := Dialect(config.Config{DBType: "oracle"}); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
}

func TestNewTestIsolated(t *testing.T) {
	first, err := NewTest()
	if err != nil {
		t.Fatalf("new test db: %v", err)
	}
	second, err := NewTest()
	if err != nil {
		t.Fatalf("new test db: %v", err)
	}
	if err := first.Exec("CREATE TABLE marker (id INTEGER)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	if second.Migrator().HasTable("marker") {
		t.Fatalf("expected databases to be isolated")
	}
}
