package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"propdesk/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория уведомлений
var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// NotificationRepository - работа с таблицей notifications
//
// Журнал событий риска: DANGER, RECOVERED, FEED, ERROR.
// Meta хранится как JSONB.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, timestamp, type, severity, account_id, message, meta`

// Create сохраняет уведомление и заполняет ID; нулевой Timestamp заменяется текущим временем
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	var meta []byte
	if len(n.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(n.Meta); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO notifications (timestamp, type, severity, account_id, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		n.Timestamp,
		n.Type,
		n.Severity,
		n.AccountID,
		n.Message,
		meta,
	).Scan(&n.ID)
}

// GetByID возвращает уведомление по ID
func (r *NotificationRepository) GetByID(ctx context.Context, id int) (*models.Notification, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return n, nil
}

// GetRecent возвращает последние limit уведомлений, новые первыми
// types фильтрует по типу; пустой список - все типы
func (r *NotificationRepository) GetRecent(ctx context.Context, types []string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	if len(types) == 0 {
		return r.query(ctx, `SELECT `+notificationColumns+` FROM notifications ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	}
	return r.query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE type = ANY($1) ORDER BY timestamp DESC, id DESC LIMIT $2`,
		pq.Array(types), limit)
}

// GetByAccount возвращает уведомления счёта, новые первыми
func (r *NotificationRepository) GetByAccount(ctx context.Context, accountID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE account_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`,
		accountID, limit)
}

// DeleteAll очищает журнал; возвращает количество удалённых записей
func (r *NotificationRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteOlderThan удаляет уведомления старше before
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE timestamp < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count возвращает количество уведомлений
func (r *NotificationRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&count)
	return count, err
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

func scanNotification(scanner interface{ Scan(...interface{}) error }) (*models.Notification, error) {
	n := &models.Notification{}
	var accountID sql.NullString
	var meta []byte

	if err := scanner.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Severity, &accountID, &n.Message, &meta); err != nil {
		return nil, err
	}

	if accountID.Valid {
		id := accountID.String
		n.AccountID = &id
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Meta); err != nil {
			return nil, err
		}
	}
	return n, nil
}
