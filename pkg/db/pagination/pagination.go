package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var ErrInvalidPageSize = errors.New("invalid_page_size")

// Pagination is bound from page_token and page_size query parameters.
type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10"`
}

func (p Pagination) Validate() error {
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return ErrInvalidPageSize
	}
	return nil
}

// Size is PageSize with zero or negative values replaced by the default and
// anything larger than MaxPageSize clamped.
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor points at the last item of a page. Pages are keyset-ordered by ID.
type Cursor struct {
	ID        string `json:"id"`
	StartedAt string `json:"started_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// EncodeCursor produces a token that is safe in a query string without
// further escaping.
func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	if cursor.ID == "" {
		return nil, errors.New("cursor without id")
	}
	return &cursor, nil
}

// Trim cuts a result fetched with one extra row down to size and reports
// whether more rows exist. The next token points at the last kept item.
func Trim[T any](items []*T, size int, cursor func(*T) Cursor) ([]*T, PageInfo, error) {
	if len(items) <= size {
		return items, PageInfo{}, nil
	}
	items = items[:size]
	token, err := EncodeCursor(cursor(items[len(items)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, PageInfo{NextPageToken: token, HasMore: true}, nil
}
