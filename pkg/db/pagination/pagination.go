package pagination

import (
	"errors"
	"math"
)

var ErrInvalidPage = errors.New("invalid_page")

// Request is an offset page request. Page is one-based.
type Request struct {
	Page  int `form:"page,default=1" validate:"gte=1"`
	Limit int `form:"limit,default=20" validate:"gte=1"`
}

// Pagination describes the page returned to callers.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// Normalize validates the request and caps Limit at maxLimit when maxLimit > 0.
func (r Request) Normalize(maxLimit int) (Request, error) {
	if r.Page < 1 || r.Limit < 1 {
		return Request{}, ErrInvalidPage
	}
	if maxLimit > 0 && r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	return r, nil
}

func (r Request) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Build returns page metadata for total matching rows.
func Build(r Request, total int64) Pagination {
	pages := 0
	if total > 0 && r.Limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(r.Limit)))
	}
	return Pagination{
		Page:  r.Page,
		Limit: r.Limit,
		Total: total,
		Pages: pages,
	}
}
