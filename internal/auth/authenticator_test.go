package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/token"
)

func newTestAuthenticator(t *testing.T, repo *mockUserRepo) (*Authenticator, *token.Issuer, *fakeClock, *mockRecorder) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_800_000_000, 0)}
	issuer := token.NewIssuer(token.IssuerConfig{Secret: testSecret, TTL: time.Hour, Now: clock.Now})
	recorder := &mockRecorder{}
	return NewAuthenticator(issuer, repo, recorder), issuer, clock, recorder
}

func issueFor(t *testing.T, issuer *token.Issuer, u *model.User) string {
	t.Helper()
	tok, err := issuer.Issue(token.Identity{UserID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	return tok
}

func TestAuthenticate_ValidTokenActiveUser(t *testing.T) {
	user := &model.User{ID: "user-1", Email: "alice@example.com", Role: model.RoleStaff, IsActive: true}
	repo := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			if id != user.ID {
				t.Errorf("FindByID id = %q, want %q", id, user.ID)
			}
			return user, nil
		},
	}
	a, issuer, _, _ := newTestAuthenticator(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+issueFor(t, issuer, user))

	got, err := a.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("AuthenticateRequest error: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("user ID = %q, want %q", got.ID, user.ID)
	}
}

func TestAuthenticate_RejectionsAreUniform(t *testing.T) {
	active := &model.User{ID: "active", Email: "a@example.com", IsActive: true}
	inactive := &model.User{ID: "inactive", Email: "i@example.com", IsActive: false}
	repo := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			switch id {
			case active.ID:
				return active, nil
			case inactive.ID:
				return inactive, nil
			}
			return nil, nil
		},
	}
	a, issuer, clock, recorder := newTestAuthenticator(t, repo)

	otherIssuer := token.NewIssuer(token.IssuerConfig{Secret: "ffffffffffffffffffffffffffffffff", Now: clock.Now})
	forged := issueFor(t, otherIssuer, active)
	expiring := issueFor(t, issuer, active)

	clock.Advance(2 * time.Hour)
	ghost := issueFor(t, issuer, &model.User{ID: "deleted"})
	deactivated := issueFor(t, issuer, inactive)

	tests := []struct {
		name       string
		header     string
		wantReason string
	}{
		{"ヘッダーなし", "", rejectMissingHeader},
		{"Bearer以外", "Basic dXNlcjpwYXNz", rejectMissingHeader},
		{"形式不正", "Bearer not.a.jwt", rejectMalformed},
		{"署名不一致", "Bearer " + forged, rejectBadSignature},
		{"期限切れ", "Bearer " + expiring, rejectExpired},
		{"存在しないユーザー", "Bearer " + ghost, rejectUnknownUser},
		{"無効化されたユーザー", "Bearer " + deactivated, rejectInactiveUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder.rejected = nil
			user, err := a.Authenticate(context.Background(), tt.header)
			if user != nil {
				t.Errorf("user = %+v, want nil", user)
			}
			if !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("err = %v, want %v", err, ErrUnauthenticated)
			}
			if len(recorder.rejected) != 1 || recorder.rejected[0] != tt.wantReason {
				t.Errorf("recorded reasons = %v, want [%s]", recorder.rejected, tt.wantReason)
			}
		})
	}
}

func TestAuthenticate_DeactivationRevokesExistingToken(t *testing.T) {
	user := &model.User{ID: "user-1", Email: "alice@example.com", IsActive: true}
	repo := &mockUserRepo{
		findByIDFn: func(context.Context, string) (*model.User, error) {
			u := *user
			return &u, nil
		},
	}
	a, issuer, _, _ := newTestAuthenticator(t, repo)
	header := "Bearer " + issueFor(t, issuer, user)

	if _, err := a.Authenticate(context.Background(), header); err != nil {
		t.Fatalf("before deactivation err = %v", err)
	}

	user.IsActive = false

	if _, err := a.Authenticate(context.Background(), header); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("after deactivation err = %v, want %v", err, ErrUnauthenticated)
	}
}

func TestAuthenticate_StoreFailureIsServiceUnavailable(t *testing.T) {
	user := &model.User{ID: "user-1", IsActive: true}
	repo := &mockUserRepo{
		findByIDFn: func(context.Context, string) (*model.User, error) {
			return nil, errors.New("too many connections")
		},
	}
	a, issuer, _, _ := newTestAuthenticator(t, repo)

	got, err := a.Authenticate(context.Background(), "Bearer "+issueFor(t, issuer, user))
	if got != nil {
		t.Errorf("user = %+v, want nil", got)
	}
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("err = %v, want %v", err, ErrServiceUnavailable)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Error("store failure must not be reported as unauthenticated")
	}
}
