package repository

import (
	"context"
	"database/sql"
	"fmt"

	"propdesk/internal/models"
)

// CandleRepository - работа с таблицей candles
//
// Хранит закрытые свечи; ключ (instrument, period_start)
type CandleRepository struct {
	db *sql.DB
}

// NewCandleRepository создает новый экземпляр репозитория
func NewCandleRepository(db *sql.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

const upsertCandleQuery = `
	INSERT INTO candles (instrument, period_start, open, high, low, close)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (instrument, period_start)
	DO UPDATE SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close`

// Upsert сохраняет свечу; повторная запись того же периода перезаписывает OHLC
func (r *CandleRepository) Upsert(ctx context.Context, c models.Candle) error {
	_, err := r.db.ExecContext(ctx, upsertCandleQuery, c.Instrument, c.Time, c.Open, c.High, c.Low, c.Close)
	if err != nil {
		return fmt.Errorf("upsert candle %s@%d: %w", c.Instrument, c.Time, err)
	}
	return nil
}

// UpsertBatch сохраняет свечи в одной транзакции
func (r *CandleRepository) UpsertBatch(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertCandleQuery)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Instrument, c.Time, c.Open, c.High, c.Low, c.Close); err != nil {
			return fmt.Errorf("upsert candle %s@%d: %w", c.Instrument, c.Time, err)
		}
	}

	return tx.Commit()
}

// GetRange возвращает свечи инструмента в [from, to] по возрастанию времени
// to = 0 - без верхней границы; limit <= 0 - без ограничения
func (r *CandleRepository) GetRange(ctx context.Context, instrument string, from, to int64, limit int) ([]models.Candle, error) {
	query := `
		SELECT instrument, period_start, open, high, low, close
		FROM candles
		WHERE instrument = $1 AND period_start >= $2 AND ($3 = 0 OR period_start <= $3)
		ORDER BY period_start ASC`
	args := []interface{}{instrument, from, to}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candles := []models.Candle{}
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Instrument, &c.Time, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return candles, nil
}

// Instruments возвращает инструменты, по которым есть свечи
func (r *CandleRepository) Instruments(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT instrument FROM candles ORDER BY instrument`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var inst string
		if err := rows.Scan(&inst); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// DeleteOlderThan удаляет свечи старше periodStart; возвращает количество удалённых
func (r *CandleRepository) DeleteOlderThan(ctx context.Context, periodStart int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM candles WHERE period_start < $1`, periodStart)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
