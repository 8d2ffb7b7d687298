package handlers

import (
	"net/http"

	"vrmchat/internal/auth"
	"vrmchat/internal/chat"
	"vrmchat/internal/chatsock"
	"vrmchat/internal/config"
	"vrmchat/internal/database"
	"vrmchat/internal/hub"
	"vrmchat/internal/services"
	"vrmchat/internal/speech"
	"vrmchat/internal/speechsock"
	"vrmchat/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	roomService *services.RoomService
	hubManager  *hub.Manager
	db          database.Database
	pipeline    *chat.Pipeline
	recognizer  speech.Recognizer
	synthesizer speech.Synthesizer
	cfg         *config.Config
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, roomService *services.RoomService, hubManager *hub.Manager, db database.Database, pipeline *chat.Pipeline, recognizer speech.Recognizer, synthesizer speech.Synthesizer, cfg *config.Config) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		roomService: roomService,
		hubManager:  hubManager,
		db:          db,
		pipeline:    pipeline,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleChatSocket serves /ws/chat/{roomID}. Auth and room resolution both
// happen before the upgrade so refusals stay plain HTTP.
func (h *WebSocketHandlers) HandleChatSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	roomID := r.PathValue("roomID")
	if roomID == "" {
		http.Error(w, "missing room ID", http.StatusBadRequest)
		return
	}
	if _, err := h.roomService.GetActiveRoom(r.Context(), roomID); err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := chatsock.NewClient(conn, h.hubManager, h.db, h.pipeline, h.cfg.Socket, roomID, userID)
	go client.Run()
}

// HandleSpeechSocket serves /ws/speech. Only authentication gates it; no
// room is involved.
func (h *WebSocketHandlers) HandleSpeechSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := speechsock.NewClient(conn, h.recognizer, h.synthesizer, h.cfg.Socket, h.cfg.Speech.FinalTimeout, userID)
	go client.Run()
}

func (h *WebSocketHandlers) resolveUser(w http.ResponseWriter, r *http.Request) (int, bool) {
	tokenStr := bearerToken(r)
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return 0, false
	}
	userID, err := h.authService.ResolveUserID(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}
