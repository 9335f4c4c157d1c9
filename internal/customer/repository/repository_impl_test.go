package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/smallbiznis/retaillens/internal/customer/domain"
	"github.com/smallbiznis/retaillens/pkg/db"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&domain.Customer{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestInsertIfAbsentKeepsFirstCountry(t *testing.T) {
	conn := setupDB(t)
	repo := Provide()
	ctx := context.Background()

	n, err := repo.InsertIfAbsent(ctx, conn, []domain.Customer{{CustomerID: "17850", Country: "United Kingdom"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted, got %d", n)
	}

	n, err = repo.InsertIfAbsent(ctx, conn, []domain.Customer{
		{CustomerID: "17850", Country: "France"},
		{CustomerID: "13047", Country: "Unknown"},
	})
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted on second call, got %d", n)
	}

	var stored domain.Customer
	if err := conn.First(&stored, "customer_id = ?", "17850").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Country != "United Kingdom" {
		t.Fatalf("country overwritten: %q", stored.Country)
	}

	count, err := repo.Count(ctx, conn)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 customers, got %d", count)
	}
}

func TestInsertIfAbsentChunks(t *testing.T) {
	conn := setupDB(t)
	repo := Provide()

	rows := make([]domain.Customer, 0, 1201)
	for i := 0; i < 1201; i++ {
		rows = append(rows, domain.Customer{CustomerID: fmt.Sprintf("%05d", i), Country: "Germany"})
	}
	n, err := repo.InsertIfAbsent(context.Background(), conn, rows)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 1201 {
		t.Fatalf("expected 1201 inserted, got %d", n)
	}
}

func TestInsertIfAbsentEmpty(t *testing.T) {
	conn := setupDB(t)
	n, err := Provide().InsertIfAbsent(context.Background(), conn, nil)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d, %v", n, err)
	}
}
