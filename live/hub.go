// Package live раздаёт подписчикам обновления пайплайна по WebSocket.
// Комната — турнир: клиенты, подписанные на турнир, получают события смены
// статуса результата и новые снимки таблицы лидеров.
package live

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Типы сообщений, уходящих в комнату турнира.
const (
	EventResultStatus       = "RESULT_STATUS"
	EventLeaderboardUpdated = "LEADERBOARD_UPDATED"
	EventIntegrityAlert     = "INTEGRITY_ALERT"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	RoomID  string `json:"room_id,omitempty"`
}

type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.rooms[client.Room]; !ok {
				h.rooms[client.Room] = make(map[*Client]bool)
			}
			h.rooms[client.Room][client] = true
			h.logger.Info("live client registered",
				slog.String("room", client.Room),
				slog.Int("room_clients", len(h.rooms[client.Room])))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if roomClients, ok := h.rooms[client.Room]; ok {
				if _, okClient := roomClients[client]; okClient {
					client.closeSend()
					delete(roomClients, client)
					if len(roomClients) == 0 {
						delete(h.rooms, client.Room)
					}
					h.logger.Info("live client unregistered", slog.String("room", client.Room))
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToRoom отправляет сообщение всем клиентам комнаты. Медленные
// клиенты с переполненным каналом пропускаются, рассылка их не ждёт.
func (h *Hub) BroadcastToRoom(roomID string, msg Message) {
	msg.RoomID = roomID

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal live message",
			slog.String("room", roomID), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	roomClients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for client := range roomClients {
		client.trySend(messageBytes)
	}
}
