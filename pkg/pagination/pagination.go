package pagination

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 20
	MaxSize     = 100

	// MaxPage keeps Offset within a PostgreSQL integer for any size.
	MaxPage = math.MaxInt32 / MaxSize
)

// Params holds 0-based page pagination extracted from a request.
type Params struct {
	Page int
	Size int
}

// FromContext reads the page and size query parameters, falling back to
// defaults for missing or malformed values and capping size at MaxSize.
func FromContext(c echo.Context) Params {
	return New(atoi(c.QueryParam("page")), atoi(c.QueryParam("size")))
}

// New normalises page and size.
func New(page, size int) Params {
	if page < 0 {
		page = 0
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Params{Page: page, Size: size}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// Limit is the SQL LIMIT for the page.
func (p Params) Limit() int { return p.Size }

// Offset is the SQL OFFSET for the page.
func (p Params) Offset() int { return p.Page * p.Size }

// TotalPages returns how many pages total results span.
func (p Params) TotalPages(total int) int {
	if p.Size <= 0 || total <= 0 {
		return 0
	}
	return (total + p.Size - 1) / p.Size
}

// Page wraps one page of results.
type Page[T any] struct {
	Content       []T  `json:"content"`
	Page          int  `json:"page"`
	Size          int  `json:"size"`
	TotalElements int  `json:"totalElements"`
	TotalPages    int  `json:"totalPages"`
	First         bool `json:"first"`
	Last          bool `json:"last"`
}

func NewPage[T any](content []T, total int, p Params) *Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := p.TotalPages(total)
	return &Page[T]{
		Content:       content,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    pages,
		First:         p.Page == 0,
		Last:          p.Page >= pages-1,
	}
}
