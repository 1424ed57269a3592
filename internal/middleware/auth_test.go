package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/model"
)

type mockAuthenticator struct {
	authenticateFn func(r *http.Request) (*model.User, error)
}

func (m *mockAuthenticator) AuthenticateRequest(r *http.Request) (*model.User, error) {
	return m.authenticateFn(r)
}

func TestAuthMiddleware_InjectsUser(t *testing.T) {
	mw := NewAuthMiddleware(&mockAuthenticator{
		authenticateFn: func(r *http.Request) (*model.User, error) {
			return &model.User{ID: "user-1", Role: model.RoleCustomer, IsActive: true}, nil
		},
	})

	var captured *model.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if captured == nil || captured.ID != "user-1" {
		t.Errorf("captured user = %+v", captured)
	}
}

func TestAuthMiddleware_Unauthenticated_Returns401(t *testing.T) {
	mw := NewAuthMiddleware(&mockAuthenticator{
		authenticateFn: func(r *http.Request) (*model.User, error) {
			return nil, auth.ErrUnauthenticated
		},
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeUnauthenticated {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthenticated)
	}
}

func TestAuthMiddleware_StoreFailure_Returns500(t *testing.T) {
	mw := NewAuthMiddleware(&mockAuthenticator{
		authenticateFn: func(r *http.Request) (*model.User, error) {
			return nil, fmt.Errorf("%w: %v", auth.ErrServiceUnavailable, errors.New("db down"))
		},
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     model.Role
		required model.Role
		want     int
	}{
		{"管理者は管理者ルートにアクセスできる", model.RoleAdmin, model.RoleAdmin, http.StatusOK},
		{"管理者はスタッフルートにアクセスできる", model.RoleAdmin, model.RoleStaff, http.StatusOK},
		{"スタッフは管理者ルートにアクセスできない", model.RoleStaff, model.RoleAdmin, http.StatusForbidden},
		{"顧客はスタッフルートにアクセスできない", model.RoleCustomer, model.RoleStaff, http.StatusForbidden},
		{"未知のロールは最下位扱い", model.Role("superuser"), model.RoleStaff, http.StatusForbidden},
		{"未知のロールでも顧客ルートは通る", model.Role(""), model.RoleCustomer, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(tt.required)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			req = req.WithContext(ContextWithUser(req.Context(), &model.User{ID: "u", Role: tt.role}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.want {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.want)
			}
		})
	}
}

func TestRequireRole_NoUser_Returns401(t *testing.T) {
	handler := RequireRole(model.RoleCustomer)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestUserIDFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("expected error when no user in context")
	}
}
