// Package listing holds the filter + page state of a list view.
//
// A State is explicit and immutable from the caller's point of view: methods
// that change it return a new value. Changing the filter resets the page to 1.
package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Page sizes of the list views.
const (
	TicketPageSize  = 20
	JobCardPageSize = 6
	FeedPageSize    = 25
)

// MaxPage caps the page number so Offset never overflows.
const MaxPage = 100_000

type State[F comparable] struct {
	Filter F
	Page   int
	Size   int
}

// Meta is the pagination block returned with every page.
type Meta struct {
	Page      int    `json:"page"`
	Size      int    `json:"size"`
	Total     int64  `json:"total"`
	HasNext   bool   `json:"has_next"`
	HasPrev   bool   `json:"has_prev"`
	FilterKey string `json:"filter_key"`
}

func New[F comparable](size int) State[F] {
	if size <= 0 {
		size = TicketPageSize
	}
	return State[F]{Page: 1, Size: size}
}

// WithFilter sets f; the page goes back to 1 if f differs from the current filter.
func (s State[F]) WithFilter(f F) State[F] {
	if f != s.Filter {
		s.Page = 1
	}
	s.Filter = f
	return s
}

func (s State[F]) WithPage(page int) State[F] {
	if page < 1 {
		page = 1
	}
	s.Page = min(page, MaxPage)
	return s
}

func (s State[F]) Next() State[F] { return s.WithPage(s.Page + 1) }
func (s State[F]) Prev() State[F] { return s.WithPage(s.Page - 1) }

func (s State[F]) Limit() int { return s.Size }

func (s State[F]) Offset() int {
	if s.Page < 1 {
		return 0
	}
	return (s.Page - 1) * s.Size
}

// HasNext is false once page*size covers total.
func (s State[F]) HasNext(total int64) bool {
	return int64(s.Page)*int64(s.Size) < total
}

func (s State[F]) HasPrev() bool { return s.Page > 1 }

// Key fingerprints the filter. A client echoes it back with the next page
// request; a different key means the filter changed and the page resets.
func (s State[F]) Key() string {
	return FilterKey(s.Filter)
}

func (s State[F]) Meta(total int64) Meta {
	return Meta{
		Page:      s.Page,
		Size:      s.Size,
		Total:     total,
		HasNext:   s.HasNext(total),
		HasPrev:   s.HasPrev(),
		FilterKey: s.Key(),
	}
}

// Resume builds the state for a request: page is honoured only when the
// client's key matches the current filter.
func Resume[F comparable](size int, f F, page int, key string) State[F] {
	s := New[F](size)
	s.Filter = f
	if key != "" && key == FilterKey(f) {
		s = s.WithPage(page)
	} else if key == "" && page > 1 {
		// без ключа клиент сам отвечает за сброс
		s = s.WithPage(page)
	}
	return s
}

func FilterKey(f any) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%+v", f)))
	return hex.EncodeToString(sum[:6])
}
