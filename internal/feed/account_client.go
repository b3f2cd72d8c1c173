package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/pkg/ratelimit"
	"propdesk/pkg/retry"
	"propdesk/pkg/utils"
)

// ErrNoAccountService - не задан адрес сервиса счетов
var ErrNoAccountService = errors.New("account service url is not configured")

// AccountClientConfig - параметры клиента сервиса счетов
type AccountClientConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Retry             *retry.Config // nil - retry.SnapshotConfig()
}

// AccountClient получает снимки фондированных счетов по HTTP
//
// GET {base}/accounts/snapshots отвечает массивом снимков
// или объектом {"accounts": [...]}.
// Запросы ограничены по частоте; повторы укладываются в дедлайн ctx.
type AccountClient struct {
	endpoint string
	http     *HTTPClient
	limiter  *ratelimit.RateLimiter
	retryCfg retry.Config
	logger   *zap.Logger
}

// NewAccountClient создаёт клиента
func NewAccountClient(cfg AccountClientConfig, httpClient *HTTPClient, logger *zap.Logger) (*AccountClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoAccountService
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultHTTPClientConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := retry.SnapshotConfig()
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}

	c := &AccountClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/accounts/snapshots",
		http:     httpClient,
		limiter:  ratelimit.NewRateLimiter(cfg.RequestsPerSecond, 0),
		retryCfg: rc,
		logger:   logger.With(utils.Component("account_client")),
	}

	c.retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		SnapshotRequests.WithLabelValues("retry").Inc()
		c.logger.Debug("snapshot fetch retry",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return c, nil
}

// FetchSnapshots запрашивает снимки всех счетов
//
// Снимки без account_id отбрасываются; порядок остальных сохраняется
func (c *AccountClient) FetchSnapshots(ctx context.Context) ([]models.AccountSnapshot, error) {
	list, err := retry.DoWithResult(ctx, func() (snapshotList, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var list snapshotList
		if err := c.http.GetJSON(ctx, c.endpoint, &list); err != nil {
			return nil, err
		}
		return list, nil
	}, c.retryCfg)
	if err != nil {
		SnapshotRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch snapshots: %w", err)
	}
	SnapshotRequests.WithLabelValues("ok").Inc()

	out := make([]models.AccountSnapshot, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s.AccountID) == "" {
			c.logger.Debug("snapshot without account_id skipped")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// snapshotList принимает оба формата ответа
type snapshotList []models.AccountSnapshot

func (l *snapshotList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	if trimmed[0] == '{' {
		var env struct {
			Accounts []models.AccountSnapshot `json:"accounts"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return err
		}
		*l = env.Accounts
		return nil
	}

	var arr []models.AccountSnapshot
	if err := json.Unmarshal(trimmed, &arr); err != nil {
		return err
	}
	*l = arr
	return nil
}
