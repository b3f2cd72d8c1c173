package websocket

import (
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"propdesk/internal/models"
	"propdesk/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// broadcastBufferSize - очередь hub; при переполнении сообщения отбрасываются
const broadcastBufferSize = 1024

// Hub управляет всеми активными WebSocket соединениями
//
// Центральный менеджер рассылки: свечи, оценки риска и уведомления
// отправляются всем подключённым зрителям.
//
// - регистрация и отмена регистрации идут через каналы главного цикла
// - Broadcast не блокирует вызывающего: при полной очереди сообщение теряется
// - клиент, не успевающий читать, отключается
//
// Использование:
// 1. hub := NewHub(logger)
// 2. go hub.Run()
// 3. hub.BroadcastCandleUpdate(update) / BroadcastRiskUpdate / BroadcastNotification
// 4. hub.Stop() при завершении
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	done     chan struct{}
	stopOnce sync.Once

	origins *OriginChecker
	logger  *zap.Logger

	dropped atomic.Int64
}

// NewHub создаёт Hub; пустой список origins разрешает всех
func NewHub(logger *zap.Logger, allowedOrigins ...string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		origins:    NewOriginChecker(allowedOrigins),
		logger:     logger.With(utils.Component("ws_hub")),
	}
}

// Run запускает главный цикл Hub; возвращается после Stop
//
// Список клиентов копируется под коротким RLock, отправка идёт без блокировки,
// медленные клиенты удаляются под Write Lock
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			ConnectedClients.Set(float64(n))
			h.logger.Debug("client connected", zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			ConnectedClients.Set(float64(n))
			h.logger.Debug("client disconnected", zap.Int("clients", n))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				n := len(h.clients)
				h.mu.Unlock()
				ConnectedClients.Set(float64(n))
				SlowClientsRemoved.Add(float64(len(toRemove)))
				h.logger.Warn("removed slow clients", zap.Int("removed", len(toRemove)), zap.Int("clients", n))
			}
		}
	}
}

// Stop останавливает главный цикл и закрывает всех клиентов; повторный вызов - no-op
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	ConnectedClients.Set(0)
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// BroadcastRaw ставит готовое сообщение в очередь рассылки
func (h *Hub) BroadcastRaw(data []byte) {
	if h.stopped() {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
		MessagesDropped.Inc()
	}
}

// Broadcast сериализует сообщение и отправляет всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal broadcast message", zap.Error(err))
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastCandleUpdate отправляет изменение свечи
func (h *Hub) BroadcastCandleUpdate(update models.CandleUpdate) {
	h.Broadcast(NewCandleUpdateMessage(update))
}

// OnCandleUpdate позволяет подключить hub к конвейеру свечей наблюдателем
func (h *Hub) OnCandleUpdate(update models.CandleUpdate) {
	h.BroadcastCandleUpdate(update)
}

// BroadcastRiskUpdate отправляет опубликованные оценки риска
func (h *Hub) BroadcastRiskUpdate(assessments []models.RiskAssessment) {
	h.Broadcast(NewRiskUpdateMessage(assessments))
}

// BroadcastNotification отправляет новое уведомление
func (h *Hub) BroadcastNotification(n *models.Notification) {
	h.Broadcast(NewNotificationMessage(n))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество отброшенных сообщений
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
