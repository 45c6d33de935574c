package models

// ResultFilter represents filter parameters for querying run artifacts
type ResultFilter struct {
	RunID        string `form:"-"`
	IndividualID string `form:"individual_id"`
	Species      string `form:"species"`
	RefugiaOnly  bool   `form:"refugia"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

// Normalize applies paging defaults
func (f *ResultFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 100
	}
	if f.PageSize > 1000 {
		f.PageSize = 1000
	}
}

// Offset returns the row offset of the current page
func (f ResultFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// PageResponse represents a paginated artifact listing
type PageResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// NewPageResponse wraps one page of data listed with the normalized filter f
func NewPageResponse(data interface{}, total int64, f ResultFilter) *PageResponse {
	var pages int
	if f.PageSize > 0 {
		pages = int((total + int64(f.PageSize) - 1) / int64(f.PageSize))
	}
	return &PageResponse{
		Data:       data,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: pages,
	}
}
