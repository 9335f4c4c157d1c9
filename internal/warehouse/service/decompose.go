package service

import (
	calendardomain "github.com/smallbiznis/retaillens/internal/calendar/domain"
	cleaningdomain "github.com/smallbiznis/retaillens/internal/cleaning/domain"
	customerdomain "github.com/smallbiznis/retaillens/internal/customer/domain"
	productdomain "github.com/smallbiznis/retaillens/internal/product/domain"
	"github.com/smallbiznis/retaillens/internal/warehouse/domain"
)

// Decompose splits records into deduplicated dimension rows in first-seen
// order. The first country and description seen for a key win; a missing
// country becomes unknownCountry.
func Decompose(records []cleaningdomain.CleanedRecord, unknownCountry string) domain.Batches {
	batches := domain.Batches{Records: records}

	seenCustomers := make(map[string]struct{})
	seenProducts := make(map[string]struct{})
	seenTimes := make(map[calendardomain.Key]struct{})

	for _, r := range records {
		if _, ok := seenCustomers[r.CustomerID]; !ok {
			seenCustomers[r.CustomerID] = struct{}{}
			country := unknownCountry
			if r.Country != nil && *r.Country != "" {
				country = *r.Country
			}
			batches.Customers = append(batches.Customers, customerdomain.Customer{
				CustomerID: r.CustomerID,
				Country:    country,
			})
		}

		if _, ok := seenProducts[r.StockCode]; !ok {
			seenProducts[r.StockCode] = struct{}{}
			batches.Products = append(batches.Products, productdomain.Product{
				StockCode:   r.StockCode,
				Description: r.Description,
			})
		}

		key := TimeKey(r)
		if _, ok := seenTimes[key]; !ok {
			seenTimes[key] = struct{}{}
			batches.TimeKeys = append(batches.TimeKeys, key)
		}
	}
	return batches
}

func TimeKey(r cleaningdomain.CleanedRecord) calendardomain.Key {
	return calendardomain.Key{Day: r.Day, Month: r.Month, Year: r.Year, Hour: r.Hour, Minute: r.Minute}
}
