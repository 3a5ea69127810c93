package repository

// Page selects a window of a list query.  Page is 1-based.
type Page struct {
	Page     int
	PageSize int
}

// Default and maximum page sizes applied by Normalize.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize clamps the page into a valid range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Limit is the SQL LIMIT for the page.
func (p Page) Limit() int { return p.Normalize().PageSize }

// Offset is the SQL OFFSET for the page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}
