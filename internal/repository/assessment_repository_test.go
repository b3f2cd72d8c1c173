package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"propdesk/internal/models"
)

// ============================================================
// AssessmentRepository Tests
// ============================================================

func TestAssessmentRepositoryAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assessments := []models.RiskAssessment{
		{AccountID: "a1", LossAmount: 9000, MaxAllowedLoss: 10000, UsagePct: 90, MaxLossLimit: 90000},
		{AccountID: "a2", LossAmount: 11000, MaxAllowedLoss: 10000, UsagePct: 100, IsDanger: true, MaxLossLimit: 90000},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO risk_assessments`)
	prep.ExpectExec().WithArgs(at, "a1", 9000.0, 10000.0, 90.0, false, 90000.0).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs(at, "a2", 11000.0, 10000.0, 100.0, true, 90000.0).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := NewAssessmentRepository(db).Append(context.Background(), at, assessments); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAssessmentRepositoryAppendRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO risk_assessments`)
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = NewAssessmentRepository(db).Append(context.Background(), time.Now(), []models.RiskAssessment{{AccountID: "a1"}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAssessmentRepositoryGetHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"recorded_at", "account_id", "loss_amount", "max_allowed_loss", "usage_pct", "is_danger", "max_loss_limit"}).
		AddRow(now, "a1", 11000.0, 10000.0, 100.0, true, 90000.0).
		AddRow(now.Add(-5*time.Second), "a1", 9000.0, 10000.0, 90.0, false, 90000.0)
	mock.ExpectQuery(`SELECT .+ FROM risk_assessments WHERE account_id = \$1`).
		WithArgs("a1", 100).
		WillReturnRows(rows)

	got, err := NewAssessmentRepository(db).GetHistory(context.Background(), "a1", 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(got) != 2 || !got[0].IsDanger || got[1].UsagePct != 90 {
		t.Errorf("got %+v", got)
	}
}
