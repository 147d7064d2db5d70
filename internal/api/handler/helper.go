// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/internal/store"
	"github.com/gormscope/gormscope/pkg/errors"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	minPageSize     = 1
	maxPageSize     = 100
)

// Transactor runs scoped transactions
type Transactor interface {
	Transaction(ctx context.Context, fn database.TxFunc) error
}

// parsePagination reads page and page_size, falling back to defaults on
// out-of-range values. It returns the page, the page size and the offset.
func parsePagination(c *gin.Context) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))

	if page < 1 {
		page = defaultPage
	}
	if pageSize < minPageSize || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

// parseID reads the :id path parameter
func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.ErrValidation("invalid id " + strconv.Quote(c.Param("id")))
	}
	return uint(id), nil
}

// requestStore returns a store on the session bound to the request
func requestStore(c *gin.Context) (store.Store, error) {
	st, ok := store.FromContext(c.Request.Context())
	if !ok {
		return nil, errors.ErrIntegrity("request has no database session")
	}
	return st, nil
}
