package domain

import (
	"context"
	"errors"
	"fmt"

	calendardomain "github.com/smallbiznis/retaillens/internal/calendar/domain"
	cleaningdomain "github.com/smallbiznis/retaillens/internal/cleaning/domain"
	customerdomain "github.com/smallbiznis/retaillens/internal/customer/domain"
	productdomain "github.com/smallbiznis/retaillens/internal/product/domain"
)

const (
	PhaseCustomers = "customers"
	PhaseProducts  = "products"
	PhaseTimes     = "times"
	PhaseFacts     = "facts"
)

var (
	ErrUnresolvedTimeKey = errors.New("unresolved_time_key")
)

// Batches is the dimensional decomposition of a cleaned record set.
type Batches struct {
	Customers []customerdomain.Customer
	Products  []productdomain.Product
	TimeKeys  []calendardomain.Key
	Records   []cleaningdomain.CleanedRecord
}

type PhaseStats struct {
	Candidates int   `json:"candidates"`
	Inserted   int64 `json:"inserted"`
}

type LoadStats struct {
	Customers    PhaseStats `json:"customers"`
	Products     PhaseStats `json:"products"`
	TimeSlots    PhaseStats `json:"time_slots"`
	Facts        PhaseStats `json:"facts"`
	FactsDropped int        `json:"facts_dropped"`
}

type TableCounts struct {
	Customers int64 `json:"customer"`
	Products  int64 `json:"product"`
	TimeSlots int64 `json:"time"`
	Sales     int64 `json:"sales"`
}

// PhaseError reports the load phase that failed. Phases that completed
// before it stay committed.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

type Loader interface {
	Load(ctx context.Context, records []cleaningdomain.CleanedRecord) (LoadStats, error)
	Verify(ctx context.Context) (TableCounts, error)
}
