package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/meterly/backend/internal/application/identity"
	"github.com/meterly/backend/internal/interfaces/http/dto"
	"github.com/meterly/backend/internal/interfaces/http/middleware"
)

// AccountHandler serves the caller's own account and the admin user directory
type AccountHandler struct {
	BaseHandler
	userService *identity.UserService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(userService *identity.UserService) *AccountHandler {
	return &AccountHandler{userService: userService}
}

// Me godoc
// @Summary      Current principal
// @Description  Describe the caller, registered or anonymous, with its balance
// @Tags         account
// @Produce      json
// @Success      200 {object} dto.Response{data=PrincipalResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /me [get]
func (h *AccountHandler) Me(c *gin.Context) {
	h.Success(c, toPrincipalResponse(middleware.MustGetPrincipal(c)))
}

// ChangePassword godoc
// @Summary      Change password
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        request body ChangePasswordRequest true "Old and new password"
// @Success      200 {object} dto.Response{data=MessageResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /me/password [put]
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ref := middleware.GetPrincipalRef(c)

	if err := h.userService.ChangePassword(c.Request.Context(), ref.ID, req.OldPassword, req.NewPassword); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, MessageResponse{Message: "Password changed successfully"})
}

// ListUsers godoc
// @Summary      List users
// @Tags         admin
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        order_by query string false "created_at, username, email, balance, tier or last_login_at"
// @Param        order_dir query string false "asc or desc"
// @Success      200 {object} dto.Response{data=[]UserResponse,meta=dto.Meta}
// @Failure      403 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/users [get]
func (h *AccountHandler) ListUsers(c *gin.Context) {
	var req dto.ListRequest
	if !h.bindQuery(c, &req) {
		return
	}

	result, err := h.userService.List(c.Request.Context(), toFilter(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, mapSlice(result.Users, toUserResponse), result.Total, result.Page, result.PageSize)
}

// GetUser godoc
// @Summary      Get a user
// @Tags         admin
// @Produce      json
// @Param        id path string true "User ID"
// @Success      200 {object} dto.Response{data=UserResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/users/{id} [get]
func (h *AccountHandler) GetUser(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	user, err := h.userService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUserResponse(user))
}

// UpdateUser godoc
// @Summary      Update a user
// @Description  Change role, tier or active status
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id path string true "User ID"
// @Param        request body UpdateUserRequest true "Fields to change"
// @Success      200 {object} dto.Response{data=UserResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/users/{id} [patch]
func (h *AccountHandler) UpdateUser(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !h.bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Update(c.Request.Context(), id, identity.UpdateUserInput{
		Role:   req.Role,
		Tier:   req.Tier,
		Active: req.Active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toUserResponse(user))
}

