// Package pagination slices ordered results into fixed-size pages.
package pagination

import (
	"errors"
	"fmt"
	"slices"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultPageSize is the initial page size.
const DefaultPageSize = 20

// PageSizes are the selectable page sizes.
var PageSizes = []int{20, 30, 50, 75, 100}

// ErrInvalidPageSize is returned for sizes outside PageSizes.
var ErrInvalidPageSize = errors.New("invalid page size")

// ValidPageSize reports whether size is selectable.
func ValidPageSize(size int) bool {
	return slices.Contains(PageSizes, size)
}

// TotalPages returns max(1, ceil(count/size)).
func TotalPages(count, size int) int {
	if size <= 0 || count <= 0 {
		return 1
	}
	return (count + size - 1) / size
}

// Clamp bounds page to [1, totalPages].
func Clamp(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Paginate returns the requested page of items, clamping the page number.
func Paginate(items []domain.AnnotatedTransaction, page, size int) (domain.Page, error) {
	if !ValidPageSize(size) {
		return domain.Page{}, fmt.Errorf("%w: %d", ErrInvalidPageSize, size)
	}

	total := TotalPages(len(items), size)
	page = Clamp(page, total)

	return domain.Page{
		Items:       window(items, page, size),
		CurrentPage: page,
		TotalPages:  total,
		PageSize:    size,
		Total:       len(items),
	}, nil
}

// window returns items[(page-1)*size : page*size], bounded by len(items).
func window(items []domain.AnnotatedTransaction, page, size int) []domain.AnnotatedTransaction {
	start := (page - 1) * size
	if start >= len(items) || start < 0 {
		return []domain.AnnotatedTransaction{}
	}
	end := min(start+size, len(items))
	return items[start:end]
}

// Paginator tracks the current page and page size across result changes.
// It is not safe for concurrent use.
type Paginator struct {
	page  int
	size  int
	count int
}

// New creates a paginator on page 1 with the given size.
func New(size int) (*Paginator, error) {
	if !ValidPageSize(size) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, size)
	}
	return &Paginator{page: 1, size: size}, nil
}

// CurrentPage returns the 1-based current page.
func (p *Paginator) CurrentPage() int { return p.page }

// PageSize returns the current page size.
func (p *Paginator) PageSize() int { return p.size }

// TotalPages returns the page count for the last seen result size.
func (p *Paginator) TotalPages() int { return TotalPages(p.count, p.size) }

// SetPage jumps to page, clamped into [1, TotalPages].
func (p *Paginator) SetPage(page int) {
	p.page = Clamp(page, p.TotalPages())
}

// Next advances one page, staying on the last page.
func (p *Paginator) Next() { p.SetPage(p.page + 1) }

// Prev goes back one page, staying on the first page.
func (p *Paginator) Prev() { p.SetPage(p.page - 1) }

// SetPageSize changes the page size and returns to page 1.
func (p *Paginator) SetPageSize(size int) error {
	if !ValidPageSize(size) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, size)
	}
	p.size = size
	p.page = 1
	return nil
}

// Page returns the current page of items. When items shrank below the current
// page the result is empty and CurrentPage is left as is until the next
// navigation clamps it.
func (p *Paginator) Page(items []domain.AnnotatedTransaction) domain.Page {
	p.count = len(items)
	return domain.Page{
		Items:       window(items, p.page, p.size),
		CurrentPage: p.page,
		TotalPages:  p.TotalPages(),
		PageSize:    p.size,
		Total:       len(items),
	}
}
