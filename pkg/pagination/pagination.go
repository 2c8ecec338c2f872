package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 50
	MaxSize     = 100
)

// Params holds pagination parameters extracted from a request.
// Pages are 1-based; size is clamped to [1, MaxSize].
type Params struct {
	Page int
	Size int
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	return Params{Page: page, Size: size}
}

// Limit returns the row limit for SQL queries.
func (p Params) Limit() int { return p.Size }

// Offset returns the row offset for SQL queries.
func (p Params) Offset() int { return (p.Page - 1) * p.Size }

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Size < total
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Size    int         `json:"size"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Page:    p.Page,
		Size:    p.Size,
		HasMore: p.HasNext(total),
	}
}
