package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/pkg/retry"
	"propdesk/pkg/utils"
)

// ErrNoFeedURL - не задан адрес WebSocket источника
var ErrNoFeedURL = errors.New("feed url is not configured")

// millisThreshold - timestamp больше этого значения считается миллисекундами
// (1e12 с = год 33658, 1e12 мс = сентябрь 2001)
const millisThreshold = 1e12

// WSConfig - параметры WebSocket источника котировок
type WSConfig struct {
	URL        string
	HistoryURL string // база HTTP API истории, пусто - истории нет
	Headers    http.Header

	// Начальная и максимальная задержка переподключения (exponential backoff)
	InitialDelay time.Duration
	MaxDelay     time.Duration

	ConnectTimeout time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration // соединение без сообщений и pong дольше этого считается мёртвым
	WriteTimeout   time.Duration

	Buffer int // ёмкость канала тиков
}

// DefaultWSConfig возвращает конфигурацию по умолчанию
func DefaultWSConfig(feedURL string) WSConfig {
	return WSConfig{
		URL:            feedURL,
		InitialDelay:   1 * time.Second,
		MaxDelay:       16 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   15 * time.Second,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Second,
		Buffer:         1024,
	}
}

func (c *WSConfig) normalize() {
	d := DefaultWSConfig(c.URL)
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
}

// ConnState - состояние WebSocket соединения
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// subscribeMessage отправляется после каждого (пере)подключения
type subscribeMessage struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}

// WSSource - источник котировок по WebSocket
//
// Сообщения: тик {"instrument","timestamp","ltp"} или массив тиков.
// Timestamp в секундах; значения в миллисекундах приводятся к секундам.
//
// Разрыв соединения, ошибка чтения или отсутствие сообщений дольше ReadTimeout
// ведут к переподключению с exponential backoff и повторной подпиской.
// Канал тиков закрывается только при отмене ctx.
type WSSource struct {
	cfg          WSConfig
	http         *HTTPClient
	historyRetry retry.Config
	logger       *zap.Logger

	state      atomic.Int32
	reconnects atomic.Int64
}

// NewWSSource создаёт WebSocket источник
func NewWSSource(cfg WSConfig, httpClient *HTTPClient, logger *zap.Logger) *WSSource {
	cfg.normalize()
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultHTTPClientConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &WSSource{
		cfg:          cfg,
		http:         httpClient,
		historyRetry: retry.HistoryConfig(),
		logger:       logger.With(utils.Component("ws_feed")),
	}

	s.historyRetry.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("history fetch retry",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return s
}

// State возвращает текущее состояние соединения
func (s *WSSource) State() ConnState {
	return ConnState(s.state.Load())
}

// Reconnects возвращает количество переподключений
func (s *WSSource) Reconnects() int64 {
	return s.reconnects.Load()
}

// Subscribe запускает цикл подключения и возвращает канал тиков
func (s *WSSource) Subscribe(ctx context.Context, instruments []string) (<-chan models.Tick, error) {
	if s.cfg.URL == "" {
		return nil, ErrNoFeedURL
	}
	if _, err := url.Parse(s.cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}

	subs := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		if inst = utils.NormalizeInstrument(inst); inst != "" {
			subs = append(subs, inst)
		}
	}

	out := make(chan models.Tick, s.cfg.Buffer)
	go s.run(ctx, subs, out)
	return out, nil
}

// run - цикл переподключений
func (s *WSSource) run(ctx context.Context, instruments []string, out chan<- models.Tick) {
	defer close(out)
	defer func() {
		s.state.Store(int32(StateClosed))
		SourceConnected.Set(0)
	}()

	delay := s.cfg.InitialDelay

	for {
		s.state.Store(int32(StateConnecting))

		connected, err := s.session(ctx, instruments, out)
		SourceConnected.Set(0)
		if ctx.Err() != nil {
			return
		}

		if connected {
			// соединение успело поработать: backoff с начала
			delay = s.cfg.InitialDelay
		}

		s.state.Store(int32(StateReconnecting))
		s.reconnects.Add(1)
		SourceReconnects.Inc()

		s.logger.Warn("feed disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("delay", delay),
			zap.Int64("reconnects", s.reconnects.Load()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		delay *= 2
		if delay > s.cfg.MaxDelay {
			delay = s.cfg.MaxDelay
		}
	}
}

// session обслуживает одно соединение до ошибки или отмены ctx
// connected = true, если соединение было установлено и подписка отправлена
func (s *WSSource) session(ctx context.Context, instruments []string, out chan<- models.Tick) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}

	dialCtx, cancelDial := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, _, err := dialer.DialContext(dialCtx, s.cfg.URL, s.cfg.Headers)
	cancelDial()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// отмена ctx разблокирует ReadMessage
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	if err := s.subscribe(conn, instruments); err != nil {
		return false, err
	}

	s.state.Store(int32(StateConnected))
	SourceConnected.Set(1)
	s.logger.Info("feed connected", zap.String("url", s.cfg.URL), zap.Int("instruments", len(instruments)))

	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	go s.pingLoop(connCtx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("read: %w", err)
		}
		extend()

		ticks, err := decodeTicks(message)
		if err != nil {
			DecodeErrors.WithLabelValues(sourceWS).Inc()
			s.logger.Debug("feed message skipped", zap.Error(err), zap.Int("size", len(message)))
			continue
		}

		for _, tick := range ticks {
			select {
			case out <- tick:
				TicksReceived.WithLabelValues(sourceWS).Inc()
			case <-ctx.Done():
				return true, ctx.Err()
			}
		}
	}
}

// subscribe отправляет подписку на инструменты
func (s *WSSource) subscribe(conn *websocket.Conn, instruments []string) error {
	if len(instruments) == 0 {
		return nil
	}
	data, err := json.Marshal(subscribeMessage{Action: "subscribe", Instruments: instruments})
	if err != nil {
		return fmt.Errorf("encode subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// pingLoop держит соединение живым
func (s *WSSource) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// decodeTicks разбирает сообщение источника: объект или массив тиков
func decodeTicks(message []byte) ([]models.Tick, error) {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 {
		return nil, errors.New("empty message")
	}

	var ticks []models.Tick
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &ticks); err != nil {
			return nil, fmt.Errorf("decode tick batch: %w", err)
		}
	case '{':
		var t models.Tick
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return nil, fmt.Errorf("decode tick: %w", err)
		}
		ticks = []models.Tick{t}
	default:
		return nil, fmt.Errorf("unexpected message prefix %q", trimmed[0])
	}

	out := ticks[:0]
	for _, t := range ticks {
		// служебные сообщения (ack подписки, heartbeat) без инструмента пропускаем
		if t.Instrument == "" {
			continue
		}
		t.Instrument = utils.NormalizeInstrument(t.Instrument)
		if t.Timestamp > millisThreshold {
			t.Timestamp /= 1000
		}
		out = append(out, t)
	}
	return out, nil
}

// History загружает исторические свечи через HTTP API источника
// GET {HistoryURL}/history?instrument=&from=&to=
func (s *WSSource) History(ctx context.Context, instrument string, from, to int64) ([]models.Candle, error) {
	if s.cfg.HistoryURL == "" {
		return []models.Candle{}, nil
	}

	q := url.Values{}
	q.Set("instrument", instrument)
	q.Set("from", fmt.Sprint(from))
	q.Set("to", fmt.Sprint(to))
	endpoint := strings.TrimRight(s.cfg.HistoryURL, "/") + "/history?" + q.Encode()

	candles, err := retry.DoWithResult(ctx, func() ([]models.Candle, error) {
		var candles []models.Candle
		if err := s.http.GetJSON(ctx, endpoint, &candles); err != nil {
			return nil, err
		}
		return candles, nil
	}, s.historyRetry)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", instrument, err)
	}

	if candles == nil {
		candles = []models.Candle{}
	}
	return candles, nil
}
