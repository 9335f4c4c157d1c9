package server

import (
	"strconv"
	"strings"
	"time"

	insightsdomain "github.com/smallbiznis/retaillens/internal/insights/domain"
)

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}

func parseOptionalDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	return time.Parse(insightsdomain.DateLayout, trimmed)
}

type rangeQuery struct {
	Start string `form:"start"`
	End   string `form:"end"`
}

// dateRange parses start and end as YYYY-MM-DD. Either may be omitted.
func (q rangeQuery) dateRange() (insightsdomain.DateRange, error) {
	start, err := parseOptionalDate(q.Start)
	if err != nil {
		return insightsdomain.DateRange{}, newValidationError("start", "invalid_date", "start must be YYYY-MM-DD")
	}
	end, err := parseOptionalDate(q.End)
	if err != nil {
		return insightsdomain.DateRange{}, newValidationError("end", "invalid_date", "end must be YYYY-MM-DD")
	}
	r := insightsdomain.DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return insightsdomain.DateRange{}, err
	}
	return r, nil
}

func parseLimit(value string) (int, error) {
	limit, err := parseOptionalInt(value)
	if err != nil || limit < 0 {
		return 0, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer")
	}
	return limit, nil
}
