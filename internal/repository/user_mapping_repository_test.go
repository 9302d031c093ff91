package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/loanbridge/portal-api/internal/apperr"
	"github.com/loanbridge/portal-api/internal/models"
)

func mappingRows(email string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "auth_user_id", "email", "contact_id", "created_at", "updated_at"}).
		AddRow("map-1", "auth-1", email, "contact-1", now, now)
}

func TestLookupWithEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("WHERE auth_user_id = \\$1 AND lower\\(email\\)").
		WithArgs("auth-1", "alice@x.com").
		WillReturnRows(mappingRows("alice@x.com"))

	repo := NewUserMappingRepository(db)
	mapping, err := repo.Lookup(context.Background(), "auth-1", "alice@x.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if mapping.ContactID != "contact-1" {
		t.Fatalf("unexpected contact: %s", mapping.ContactID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLookupLooseMatchWithoutEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("WHERE auth_user_id = \\$1;").
		WithArgs("auth-1").
		WillReturnRows(mappingRows("other@x.com"))

	repo := NewUserMappingRepository(db)
	mapping, err := repo.Lookup(context.Background(), "auth-1", "")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if mapping.AuthUserID != "auth-1" {
		t.Fatalf("unexpected auth user: %s", mapping.AuthUserID)
	}
}

func TestLookupNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM portal.user_mappings").
		WithArgs("auth-2", "bob@x.com").
		WillReturnError(sql.ErrNoRows)

	repo := NewUserMappingRepository(db)
	_, err = repo.Lookup(context.Background(), "auth-2", "bob@x.com")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found kind, got %v", err)
	}
}

func TestUpsertRebindsExistingMapping(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("INSERT INTO portal.user_mappings").
		WithArgs("auth-1", "alice@x.com", "contact-1").
		WillReturnRows(mappingRows("alice@x.com"))

	repo := NewUserMappingRepository(db)
	mapping, err := repo.Upsert(context.Background(), models.UserMapping{
		AuthUserID: "auth-1",
		Email:      "alice@x.com",
		ContactID:  "contact-1",
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if mapping.ID != "map-1" {
		t.Fatalf("unexpected id: %s", mapping.ID)
	}
}
