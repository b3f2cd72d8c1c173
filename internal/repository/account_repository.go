package repository

import (
	"context"
	"database/sql"
	"errors"

	"propdesk/internal/models"
)

// Ошибки репозитория счетов
var (
	ErrAccountNotFound = errors.New("account not found")
)

// AccountRepository - снимки счетов из таблицы accounts
//
// Источник снимков для мониторинга риска, когда сервис счетов пишет
// состояние напрямую в БД
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `account_id, starting_size, equity, daily_drawdown_pct, cumulative_drawdown_pct, is_danger`

func scanSnapshot(scanner interface{ Scan(...interface{}) error }, s *models.AccountSnapshot) error {
	return scanner.Scan(
		&s.AccountID,
		&s.StartingSize,
		&s.Equity,
		&s.DailyDrawdownPct,
		&s.CumulativeDrawdownPct,
		&s.ExternalDanger,
	)
}

// FetchSnapshots возвращает снимки всех счетов, упорядоченные по account_id
func (r *AccountRepository) FetchSnapshots(ctx context.Context) ([]models.AccountSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := []models.AccountSnapshot{}
	for rows.Next() {
		var s models.AccountSnapshot
		if err := scanSnapshot(rows, &s); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return snapshots, nil
}

// GetSnapshot возвращает снимок одного счёта
func (r *AccountRepository) GetSnapshot(ctx context.Context, accountID string) (*models.AccountSnapshot, error) {
	s := &models.AccountSnapshot{}
	err := scanSnapshot(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, accountID), s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return s, nil
}
