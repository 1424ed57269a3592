package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/user"
)

// UserServiceInterface はバックオフィスのユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Deactivate はアカウントを無効化する。既存のトークンも次のリクエストから拒否される。
	Deactivate(ctx context.Context, actorID, userID string) (*model.User, error)
	// Activate は無効化されたアカウントを再度有効にする。
	Activate(ctx context.Context, actorID, userID string) (*model.User, error)
}

// UserHandler はバックオフィス向けユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type userStatusResponseBody struct {
	User     model.PublicUser `json:"user"`
	IsActive bool             `json:"is_active"`
}

// Deactivate はアカウントを無効化する。
// POST /api/admin/users/{id}/deactivate
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Deactivate)
}

// Activate はアカウントを有効化する。
// POST /api/admin/users/{id}/activate
func (h *UserHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Activate)
}

func (h *UserHandler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, actorID, userID string) (*model.User, error),
) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("id", "user id is required"))
		return
	}

	updated, err := op(r.Context(), actorID, userID)
	if err != nil {
		if errors.Is(err, user.ErrSelfDeactivation) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewValidationError("id", "you cannot deactivate your own account"))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userStatusResponseBody{
		User:     updated.Public(),
		IsActive: updated.IsActive,
	})
}
