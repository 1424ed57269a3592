package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hitoshi/storefront/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var userRowColumns = []string{
	"id", "email", "name", "password_hash", "role", "is_active", "last_login_at", "created_at", "updated_at",
}

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

func TestPostgresUserRepo_FindByEmail_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lastLogin := created.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "alice@example.com", "Alice", "$2a$10$hash", "admin", true, lastLogin, created, created))

	user, err := repo.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if user == nil {
		t.Fatal("expected non-nil user")
	}
	if user.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want %q", user.Role, model.RoleAdmin)
	}
	if !user.IsActive {
		t.Error("IsActive = false, want true")
	}
	if user.LastLoginAt == nil || !user.LastLoginAt.Equal(lastLogin) {
		t.Errorf("LastLoginAt = %v, want %v", user.LastLoginAt, lastLogin)
	}
	if user.PasswordHash != "$2a$10$hash" {
		t.Errorf("PasswordHash = %q", user.PasswordHash)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_FindByEmail_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	user, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestPostgresUserRepo_FindByID_NullLastLogin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("u-2").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-2", "bob@example.com", "Bob", "$2a$10$hash", "customer", false, nil, now, now))

	user, err := repo.FindByID(context.Background(), "u-2")
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if user.LastLoginAt != nil {
		t.Errorf("LastLoginAt = %v, want nil", user.LastLoginAt)
	}
	if user.IsActive {
		t.Error("IsActive = true, want false")
	}
}

func TestPostgresUserRepo_FindByID_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("u-3").
		WillReturnError(errors.New("connection reset"))

	if _, err := repo.FindByID(context.Background(), "u-3"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestPostgresUserRepo_TouchLastLogin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET last_login_at = $2`)).
		WithArgs("u-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.TouchLastLogin(context.Background(), "u-1", at); err != nil {
		t.Fatalf("TouchLastLogin error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_SetActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_active = $2`)).
		WithArgs("u-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetActive(context.Background(), "u-1", false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}
}

func TestPostgresUserRepo_SetActive_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_active = $2`)).
		WithArgs("missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "missing", true)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want %v", err, ErrNotFound)
	}
}
