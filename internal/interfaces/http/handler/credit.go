package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	creditapp "github.com/meterly/backend/internal/application/credit"
	"github.com/meterly/backend/internal/application/metering"
	"github.com/meterly/backend/internal/domain/credit"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/settings"
	"github.com/meterly/backend/internal/interfaces/http/dto"
	"github.com/meterly/backend/internal/interfaces/http/middleware"
)

// CreditHandler serves balances, the ledger and metered actions
type CreditHandler struct {
	BaseHandler
	engine   *creditapp.Engine
	actions  *metering.ActionService
	settings settings.Provider
}

// NewCreditHandler creates a new credit handler
func NewCreditHandler(engine *creditapp.Engine, actions *metering.ActionService, settingsProvider settings.Provider) *CreditHandler {
	return &CreditHandler{
		engine:   engine,
		actions:  actions,
		settings: settingsProvider,
	}
}

// GetBalance godoc
// @Summary      Current balance
// @Tags         credits
// @Produce      json
// @Success      200 {object} dto.Response{data=BalanceResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /credits/balance [get]
func (h *CreditHandler) GetBalance(c *gin.Context) {
	ref := middleware.GetPrincipalRef(c)

	balance, err := h.engine.GetBalance(c.Request.Context(), ref)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, BalanceResponse{Principal: ref.String(), Balance: balance})
}

// ListTransactions godoc
// @Summary      Ledger of the caller
// @Description  Newest first
// @Tags         credits
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]TransactionResponse,meta=dto.Meta}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /credits/transactions [get]
func (h *CreditHandler) ListTransactions(c *gin.Context) {
	h.listTransactions(c, middleware.GetPrincipalRef(c))
}

// ListPrincipalTransactions godoc
// @Summary      Ledger of any principal
// @Tags         admin
// @Produce      json
// @Param        kind path string true "registered or anonymous"
// @Param        id path string true "Principal ID"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]TransactionResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/principals/{kind}/{id}/transactions [get]
func (h *CreditHandler) ListPrincipalTransactions(c *gin.Context) {
	kind := principal.Kind(c.Param("kind"))
	if !kind.IsValid() {
		h.BadRequest(c, "Invalid principal kind")
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	h.listTransactions(c, principal.Ref{Kind: kind, ID: id})
}

func (h *CreditHandler) listTransactions(c *gin.Context, ref principal.Ref) {
	var req dto.ListRequest
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.engine.ListTransactions(c.Request.Context(), ref, toFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	paginated(&h.BaseHandler, c, page, toTransactionResponse)
}

// PerformAction godoc
// @Summary      Perform a metered action
// @Description  Charges the configured action cost and records a gamification event named after the action, if one exists
// @Tags         credits
// @Produce      json
// @Param        name path string true "Action name"
// @Success      200 {object} dto.Response{data=ActionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /actions/{name} [post]
func (h *CreditHandler) PerformAction(c *gin.Context) {
	result, err := h.actions.Perform(c.Request.Context(), middleware.GetPrincipalRef(c), c.Param("name"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toActionResponse(result))
}

// Grant godoc
// @Summary      Grant credits
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body GrantCreditsRequest true "Grant"
// @Success      200 {object} dto.Response{data=BalanceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/credits/grant [post]
func (h *CreditHandler) Grant(c *gin.Context) {
	var req GrantCreditsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.PrincipalID == uuid.Nil {
		h.BadRequest(c, "principal_id is required")
		return
	}
	ref := principal.Ref{Kind: req.PrincipalKind, ID: req.PrincipalID}
	description := req.Description
	if description == "" {
		description = "Admin grant"
	}

	balance, err := h.engine.Grant(c.Request.Context(), ref, req.Amount, credit.KindGrant, description)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, BalanceResponse{Principal: ref.String(), Balance: balance})
}

// Reset godoc
// @Summary      Run the periodic credit reset now
// @Description  Resets every registered user whose interval has elapsed, using the current settings
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=ResetResponse}
// @Security     BearerAuth
// @Router       /admin/credits/reset [post]
func (h *CreditHandler) Reset(c *gin.Context) {
	ctx := c.Request.Context()
	s, err := h.settings.Current(ctx)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	n, err := h.engine.ResetAll(ctx, s.FreemiumDefaultCredits, s.PremiumDefaultCredits, s.ResetIntervalDays)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ResetResponse{Reset: n})
}
