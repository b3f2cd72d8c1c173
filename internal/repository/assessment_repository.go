package repository

import (
	"context"
	"database/sql"
	"time"

	"propdesk/internal/models"
)

// AssessmentRecord - сохранённая оценка риска
type AssessmentRecord struct {
	RecordedAt time.Time `json:"recorded_at"`
	models.RiskAssessment
}

// AssessmentRepository - аудит опубликованных оценок риска (таблица risk_assessments)
type AssessmentRepository struct {
	db *sql.DB
}

// NewAssessmentRepository создает новый экземпляр репозитория
func NewAssessmentRepository(db *sql.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Append сохраняет опубликованный список оценок одной транзакцией
func (r *AssessmentRepository) Append(ctx context.Context, recordedAt time.Time, assessments []models.RiskAssessment) error {
	if len(assessments) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_assessments (recorded_at, account_id, loss_amount, max_allowed_loss, usage_pct, is_danger, max_loss_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range assessments {
		if _, err := stmt.ExecContext(ctx,
			recordedAt,
			a.AccountID,
			a.LossAmount,
			a.MaxAllowedLoss,
			a.UsagePct,
			a.IsDanger,
			a.MaxLossLimit,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetHistory возвращает последние оценки счёта, новые первыми
func (r *AssessmentRepository) GetHistory(ctx context.Context, accountID string, limit int) ([]AssessmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT recorded_at, account_id, loss_amount, max_allowed_loss, usage_pct, is_danger, max_loss_limit
		FROM risk_assessments
		WHERE account_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []AssessmentRecord{}
	for rows.Next() {
		var rec AssessmentRecord
		if err := rows.Scan(
			&rec.RecordedAt,
			&rec.AccountID,
			&rec.LossAmount,
			&rec.MaxAllowedLoss,
			&rec.UsagePct,
			&rec.IsDanger,
			&rec.MaxLossLimit,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// DeleteOlderThan удаляет записи старше before
func (r *AssessmentRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM risk_assessments WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
