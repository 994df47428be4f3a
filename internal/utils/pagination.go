package utils

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PaginationParams struct {
	Page     int    `json:"page" form:"page"`
	PageSize int    `json:"page_size" form:"page_size"`
	Sort     string `json:"sort" form:"sort"`
	Order    string `json:"order" form:"order"`
	Search   string `json:"search" form:"search"`
}

type PaginationMeta struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"page_size"`
	Total        int64 `json:"total"`
	TotalPages   int   `json:"total_pages"`
	HasNext      bool  `json:"has_next"`
	HasPrevious  bool  `json:"has_previous"`
	NextPage     *int  `json:"next_page,omitempty"`
	PreviousPage *int  `json:"previous_page,omitempty"`
}

// GetPaginationParams reads paging query parameters and clamps them to
// sane bounds. Unknown order values fall back to newest-first.
func GetPaginationParams(c *gin.Context) *PaginationParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(DefaultPageSize)))
	pageSize = clamp(pageSize, MinPageSize, MaxPageSize)

	order := c.DefaultQuery("order", "desc")
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	return &PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Sort:     c.DefaultQuery("sort", "created_at"),
		Order:    order,
		Search:   c.Query("search"),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GetSortOptions builds the find options for the current page: skip,
// limit and a single-field sort.
func (p *PaginationParams) GetSortOptions() *options.FindOptions {
	order := 1
	if p.Order == "desc" {
		order = -1
	}

	return options.Find().
		SetSkip(int64((p.Page - 1) * p.PageSize)).
		SetLimit(int64(p.PageSize)).
		SetSort(bson.D{{Key: p.Sort, Value: order}})
}

// GetSearchFilter matches the search term case-insensitively against
// any of the given fields. No term or no fields means no filter.
func (p *PaginationParams) GetSearchFilter(fields []string) bson.M {
	if p.Search == "" || len(fields) == 0 {
		return bson.M{}
	}

	conditions := make([]bson.M, 0, len(fields))
	for _, field := range fields {
		conditions = append(conditions, bson.M{
			field: bson.M{"$regex": p.Search, "$options": "i"},
		})
	}
	return bson.M{"$or": conditions}
}

func CreatePaginationMeta(params *PaginationParams, total int64) *PaginationMeta {
	totalPages := int(math.Ceil(float64(total) / float64(params.PageSize)))

	meta := &PaginationMeta{
		Page:        params.Page,
		PageSize:    params.PageSize,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     params.Page < totalPages,
		HasPrevious: params.Page > 1,
	}

	if meta.HasNext {
		next := params.Page + 1
		meta.NextPage = &next
	}
	if meta.HasPrevious {
		previous := params.Page - 1
		meta.PreviousPage = &previous
	}
	return meta
}
