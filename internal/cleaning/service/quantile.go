package service

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retaillens/internal/cleaning/domain"
)

// Quantile returns the p-quantile of sorted values using linear interpolation
// between closest ranks: h = (n-1)p, q = v[floor(h)] + (h-floor(h))(v[floor(h)+1]-v[floor(h)]).
// The input must be sorted ascending and non-empty.
func Quantile(sorted []decimal.Decimal, p float64) decimal.Decimal {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := decimal.NewFromFloat(h - float64(lo))
	return sorted[lo].Add(frac.Mul(sorted[lo+1].Sub(sorted[lo])))
}

// IQRBounds computes the inclusive keep range [Q1 - k*IQR, Q3 + k*IQR].
// An empty column yields zero bounds.
func IQRBounds(values []decimal.Decimal, multiplier decimal.Decimal) domain.Bounds {
	if len(values) == 0 {
		return domain.Bounds{}
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3.Sub(q1)
	spread := multiplier.Mul(iqr)
	return domain.Bounds{
		Q1:    q1,
		Q3:    q3,
		IQR:   iqr,
		Lower: q1.Sub(spread),
		Upper: q3.Add(spread),
	}
}

func within(b domain.Bounds, v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(b.Lower) && v.LessThanOrEqual(b.Upper)
}
