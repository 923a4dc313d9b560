package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	couponapp "github.com/meterly/backend/internal/application/coupon"
	"github.com/meterly/backend/internal/domain/coupon"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/interfaces/http/middleware"
)

// CouponHandler serves redemption, issuance and coupon types
type CouponHandler struct {
	BaseHandler
	engine *couponapp.Engine
	types  *couponapp.TypeService
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(engine *couponapp.Engine, types *couponapp.TypeService) *CouponHandler {
	return &CouponHandler{engine: engine, types: types}
}

// Redeem godoc
// @Summary      Redeem a coupon
// @Description  Credits the coupon type's value to the caller. A coupon found expired is marked so before the error is returned.
// @Tags         coupons
// @Accept       json
// @Produce      json
// @Param        request body RedeemCouponRequest true "Coupon code"
// @Success      200 {object} dto.Response{data=RedeemResponse}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /coupons/redeem [post]
func (h *CouponHandler) Redeem(c *gin.Context) {
	var req RedeemCouponRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.engine.Redeem(c.Request.Context(), req.Code, middleware.GetPrincipalRef(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toRedeemResponse(result))
}

// IssueDemo godoc
// @Summary      Issue a demo coupon
// @Description  Issues a coupon of the configured demo type bound to the caller
// @Tags         coupons
// @Produce      json
// @Success      201 {object} dto.Response{data=CouponResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /coupons/demo [post]
func (h *CouponHandler) IssueDemo(c *gin.Context) {
	cp, err := h.engine.IssueDemo(c.Request.Context(), middleware.GetPrincipalRef(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toCouponResponse(cp))
}

// ListMine godoc
// @Summary      Coupons bound to the caller
// @Tags         coupons
// @Produce      json
// @Success      200 {object} dto.Response{data=[]CouponResponse}
// @Router       /coupons/mine [get]
func (h *CouponHandler) ListMine(c *gin.Context) {
	coupons, err := h.engine.ListMine(c.Request.Context(), middleware.GetPrincipalRef(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, mapSlice(coupons, toCouponResponse))
}

// Issue godoc
// @Summary      Issue a coupon
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body IssueCouponRequest true "Coupon"
// @Success      201 {object} dto.Response{data=CouponResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/coupons [post]
func (h *CouponHandler) Issue(c *gin.Context) {
	var req IssueCouponRequest
	if !h.bindJSON(c, &req) {
		return
	}
	input := couponapp.IssueInput{CouponTypeID: req.CouponTypeID, ExpiresAt: req.ExpiresAt}
	if req.BoundID != nil {
		if req.BoundKind == "" {
			h.BadRequest(c, "bound_kind is required with bound_id")
			return
		}
		input.BoundTo = &principal.Ref{Kind: req.BoundKind, ID: *req.BoundID}
	}

	cp, err := h.engine.Issue(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toCouponResponse(cp))
}

// List godoc
// @Summary      List coupons
// @Tags         admin
// @Produce      json
// @Param        status query string false "active, redeemed or expired"
// @Param        coupon_type_id query string false "Coupon type ID"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        order_by query string false "created_at, expires_at, redeemed_at, status or code"
// @Param        order_dir query string false "asc or desc"
// @Success      200 {object} dto.Response{data=[]CouponResponse,meta=dto.Meta}
// @Security     BearerAuth
// @Router       /admin/coupons [get]
func (h *CouponHandler) List(c *gin.Context) {
	var req CouponListQuery
	if !h.bindQuery(c, &req) {
		return
	}
	filter := coupon.Filter{
		Filter: toFilter(req.ListRequest),
		Status: req.Status,
	}
	if req.CouponTypeID != "" {
		id := uuid.MustParse(req.CouponTypeID)
		filter.CouponTypeID = &id
	}

	page, err := h.engine.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	paginated(&h.BaseHandler, c, page, toCouponResponse)
}

// ListTypes godoc
// @Summary      List coupon types
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=[]CouponTypeResponse}
// @Security     BearerAuth
// @Router       /admin/coupon-types [get]
func (h *CouponHandler) ListTypes(c *gin.Context) {
	types, err := h.types.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, mapSlice(types, toCouponTypeResponse))
}

// GetType godoc
// @Summary      Get a coupon type
// @Tags         admin
// @Produce      json
// @Param        id path string true "Coupon type ID"
// @Success      200 {object} dto.Response{data=CouponTypeResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/coupon-types/{id} [get]
func (h *CouponHandler) GetType(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	ct, err := h.types.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toCouponTypeResponse(ct))
}

// CreateType godoc
// @Summary      Create a coupon type
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body CouponTypeRequest true "Coupon type"
// @Success      201 {object} dto.Response{data=CouponTypeResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/coupon-types [post]
func (h *CouponHandler) CreateType(c *gin.Context) {
	var req CouponTypeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ct, err := h.types.Create(c.Request.Context(), toCouponTypeInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toCouponTypeResponse(ct))
}

// UpdateType godoc
// @Summary      Update a coupon type
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id path string true "Coupon type ID"
// @Param        request body CouponTypeRequest true "Coupon type"
// @Success      200 {object} dto.Response{data=CouponTypeResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/coupon-types/{id} [put]
func (h *CouponHandler) UpdateType(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req CouponTypeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ct, err := h.types.Update(c.Request.Context(), id, toCouponTypeInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toCouponTypeResponse(ct))
}

// DeleteType godoc
// @Summary      Delete a coupon type
// @Description  Rejected while coupons of the type exist
// @Tags         admin
// @Param        id path string true "Coupon type ID"
// @Success      204
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/coupon-types/{id} [delete]
func (h *CouponHandler) DeleteType(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.types.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

func toCouponTypeInput(req CouponTypeRequest) couponapp.CouponTypeInput {
	return couponapp.CouponTypeInput{
		Name:        req.Name,
		Description: req.Description,
		CreditValue: req.CreditValue,
		Active:      req.Active,
	}
}
