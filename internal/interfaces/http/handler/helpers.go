package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/meterly/backend/internal/interfaces/http/dto"
)

// parseUUIDParam reads a UUID path parameter, answering 400 when malformed
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// toFilter converts pagination and sort query parameters to a domain filter
func toFilter(req dto.ListRequest) shared.Filter {
	return shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
	}.Normalize()
}

// paginated writes a shared.Paginated page with meta, mapping each item
func paginated[T, R any](h *BaseHandler, c *gin.Context, page shared.Paginated[T], convert func(*T) R) {
	items := make([]R, len(page.Items))
	for i := range page.Items {
		items[i] = convert(&page.Items[i])
	}
	h.SuccessWithMeta(c, items, page.Total, page.Page, page.PageSize)
}

// mapSlice converts a slice of domain values
func mapSlice[T, R any](in []T, convert func(*T) R) []R {
	out := make([]R, len(in))
	for i := range in {
		out[i] = convert(&in[i])
	}
	return out
}
