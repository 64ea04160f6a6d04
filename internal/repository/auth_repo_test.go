package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"container_telemetry/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		_ = conn.Close()
	})
	return NewUserRepository(conn), mock
}

func expectNameFree(m sqlmock.Sqlmock, username string) {
	m.ExpectQuery(regexp.QuoteMeta(selectUsernameTakenSQL)).
		WithArgs(username).
		WillReturnError(sql.ErrNoRows)
}

func TestUserRepository_CreateStoresRole(t *testing.T) {
	cases := []struct {
		name     string
		role     models.Role
		wantRole string
	}{
		{"operator", models.RoleOperator, "operator"},
		{"viewer", models.RoleViewer, "viewer"},
		{"unset defaults to viewer", "", "viewer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newMockUserRepo(t)
			expectNameFree(mock, "dispatch")
			mock.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
				WithArgs("dispatch", "bcrypt-hash", tc.wantRole).
				WillReturnResult(sqlmock.NewResult(12, 1))

			id, err := repo.Create(context.Background(), models.User{Username: "dispatch", PasswordHash: "bcrypt-hash", Role: tc.role})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if id != 12 {
				t.Fatalf("id = %d, want 12", id)
			}
		})
	}
}

func TestUserRepository_CreateRejectsTakenName(t *testing.T) {
	repo, mock := newMockUserRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectUsernameTakenSQL)).
		WithArgs("dispatch").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	_, err := repo.Create(context.Background(), models.User{Username: "dispatch", PasswordHash: "h"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("want ErrUsernameTaken, got %v", err)
	}
}

func TestUserRepository_CreateErrors(t *testing.T) {
	t.Run("lookup fails", func(t *testing.T) {
		repo, mock := newMockUserRepo(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectUsernameTakenSQL)).
			WithArgs("dispatch").
			WillReturnError(errors.New("database is locked"))

		if _, err := repo.Create(context.Background(), models.User{Username: "dispatch"}); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("insert fails", func(t *testing.T) {
		repo, mock := newMockUserRepo(t)
		expectNameFree(mock, "dispatch")
		mock.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
			WithArgs("dispatch", "h", "viewer").
			WillReturnError(errors.New("disk I/O error"))

		id, err := repo.Create(context.Background(), models.User{Username: "dispatch", PasswordHash: "h"})
		if err == nil || id != 0 {
			t.Fatalf("want error and id 0, got id=%d err=%v", id, err)
		}
	})
	t.Run("no insert id", func(t *testing.T) {
		repo, mock := newMockUserRepo(t)
		expectNameFree(mock, "dispatch")
		mock.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
			WithArgs("dispatch", "h", "viewer").
			WillReturnResult(sqlmock.NewErrorResult(errors.New("no last id")))

		if _, err := repo.Create(context.Background(), models.User{Username: "dispatch", PasswordHash: "h"}); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestUserRepository_GetByUsernameRole(t *testing.T) {
	cases := []struct {
		stored string
		want   models.Role
	}{
		{"operator", models.RoleOperator},
		{"OPERATOR", models.RoleOperator},
		{"viewer", models.RoleViewer},
		{"superuser", models.RoleViewer},
	}
	for _, tc := range cases {
		t.Run(tc.stored, func(t *testing.T) {
			repo, mock := newMockUserRepo(t)
			mock.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
				WithArgs("dispatch").
				WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "role"}).
					AddRow(3, "dispatch", "h", tc.stored))

			u, err := repo.GetByUsername(context.Background(), "dispatch")
			if err != nil {
				t.Fatalf("GetByUsername: %v", err)
			}
			if u == nil || u.ID != 3 || u.Role != tc.want {
				t.Fatalf("got %+v, want role %q", u, tc.want)
			}
		})
	}
}

func TestUserRepository_GetByUsernameMissing(t *testing.T) {
	repo, mock := newMockUserRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	u, err := repo.GetByUsername(context.Background(), "ghost")
	if err != nil || u != nil {
		t.Fatalf("want (nil, nil), got (%+v, %v)", u, err)
	}
}

func TestUserRepository_GetByUsernameQueryError(t *testing.T) {
	repo, mock := newMockUserRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
		WithArgs("dispatch").
		WillReturnError(errors.New("database is locked"))

	if u, err := repo.GetByUsername(context.Background(), "dispatch"); err == nil || u != nil {
		t.Fatalf("want error, got (%+v, %v)", u, err)
	}
}
