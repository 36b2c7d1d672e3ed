package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/result-integrity/live"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: ограничить Origin доменом фронтенда перед продакшеном.
		return true
	},
}

type WebSocketHandler struct {
	hub    *live.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *live.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeWs подписывает клиента на события турнира: смены статусов
// результатов, новые снимки таблицы, тревоги целостности.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuidParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой.
		h.logger.Warn("websocket upgrade failed",
			slog.String("tournament_id", tournamentID.String()), slog.Any("error", err))
		return
	}

	client := live.NewClient(h.hub, conn, tournamentID.String(), h.logger)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
