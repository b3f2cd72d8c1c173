package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"propdesk/internal/models"
)

// PositionRepository - открытые позиции из таблицы positions
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionSelect = `
	SELECT id, account_id, instrument, side, entry_price, lots
	FROM positions
	WHERE status = 'open'`

// GetOpenByAccount возвращает открытые позиции счёта
func (r *PositionRepository) GetOpenByAccount(ctx context.Context, accountID string) ([]models.Position, error) {
	return r.query(ctx, positionSelect+` AND account_id = $1 ORDER BY opened_at, id`, accountID)
}

// GetOpenByAccounts возвращает открытые позиции нескольких счетов
func (r *PositionRepository) GetOpenByAccounts(ctx context.Context, accountIDs []string) ([]models.Position, error) {
	if len(accountIDs) == 0 {
		return []models.Position{}, nil
	}
	return r.query(ctx, positionSelect+` AND account_id = ANY($1) ORDER BY account_id, opened_at, id`, pq.Array(accountIDs))
}

// GetAllOpen возвращает все открытые позиции
func (r *PositionRepository) GetAllOpen(ctx context.Context) ([]models.Position, error) {
	return r.query(ctx, positionSelect+` ORDER BY account_id, opened_at, id`)
}

func (r *PositionRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Position, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := []models.Position{}
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Instrument, &p.Side, &p.EntryPrice, &p.Lots); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}
