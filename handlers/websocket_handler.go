package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/middleware"
	"github.com/bracketops/tournament-core/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens in the CORS layer; the handshake also
		// requires a valid token, so cross-origin upgrades carry no ambient
		// authority.
		return true
	},
}

// WebSocketHandler upgrades authenticated connections and attaches them to
// the tenant's event rooms.
type WebSocketHandler struct {
	hub    *realtime.Hub
	parser middleware.TokenParser
	logger *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, parser middleware.TokenParser, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		parser: parser,
		logger: logger,
	}
}

// ServeWS handles GET /ws?token=...&tournament={id}&flyer=true.
//
// Browsers cannot set the Authorization header on websocket handshakes, so
// the token rides in the query string. Every client joins the tenant's
// tournaments room; ?tournament= adds that bracket's room and ?flyer=true
// adds the public display feed.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}
	}
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing token", nil)
		return
	}

	principal, err := h.parser.ParseToken(token)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
		return
	}

	rooms := []string{events.TournamentsRoom(principal.UserID)}
	if raw := r.URL.Query().Get("tournament"); raw != "" {
		tournamentID, err := strconv.Atoi(raw)
		if err != nil || tournamentID <= 0 {
			writeError(w, r, http.StatusBadRequest, "bad_request", "invalid tournament parameter", nil)
			return
		}
		rooms = append(rooms, events.TournamentRoom(principal.UserID, tournamentID))
	}
	if r.URL.Query().Get("flyer") == "true" {
		rooms = append(rooms, events.FlyerRoom(principal.UserID))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	h.hub.Connect(conn, rooms...)
}
