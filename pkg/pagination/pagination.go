package pagination

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPerPage is used when per_page is absent or invalid.
	DefaultPerPage = 20
	// MaxPerPage caps per_page.
	MaxPerPage = 100
)

// Params is a 1-based page window.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// New clamps page to at least 1 and perPage to [1, MaxPerPage]. A
// non-positive perPage selects DefaultPerPage.
func New(page, perPage int) Params {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return Params{Page: max(page, 1), PerPage: min(perPage, MaxPerPage)}
}

// Offset is the number of rows to skip.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages is the number of pages needed for total rows.
func (p Params) TotalPages(total int) int {
	if p.PerPage <= 0 || total <= 0 {
		return 0
	}
	return (total + p.PerPage - 1) / p.PerPage
}

// FromRequest reads the page and per_page query parameters. Values that do
// not parse are treated as absent.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return New(page, perPage)
}
