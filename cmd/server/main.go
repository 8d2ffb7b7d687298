package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vrmchat/internal/auth"
	"vrmchat/internal/chat"
	"vrmchat/internal/config"
	"vrmchat/internal/database"
	"vrmchat/internal/handlers"
	"vrmchat/internal/hub"
	"vrmchat/internal/llm"
	"vrmchat/internal/services"
	"vrmchat/internal/speech"
	"vrmchat/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize speech clients
	ctx := context.Background()
	recognizer, err := speech.NewGoogleRecognizer(ctx, cfg.Speech)
	if err != nil {
		logger.Fatal("Failed to create speech recognizer: %v", err)
	}
	defer recognizer.Close()

	synthesizer, err := speech.NewGoogleSynthesizer(ctx, cfg.Speech)
	if err != nil {
		logger.Fatal("Failed to create speech synthesizer: %v", err)
	}
	defer synthesizer.Close()

	// Initialize services
	authService := auth.NewService(db, cfg)
	roomService := services.NewRoomService(db)
	llmFactory := llm.NewFactory(cfg.LLM)
	pipeline := chat.NewPipeline(db, llmFactory, cfg.LLM.SendMaxTokens)

	// Initialize room hub manager
	hubManager := hub.NewManager()

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	roomHandlers := handlers.NewRoomHandlers(roomService, authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, roomService, hubManager, db, pipeline, recognizer, synthesizer, cfg)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, roomHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("Chat socket:   ws://localhost%s/ws/chat/{roomID}", cfg.Server.Port)
	logger.Info("Speech socket: ws://localhost%s/ws/speech", cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")
	server.Shutdown(context.Background())
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, roomHandlers *handlers.RoomHandlers, wsHandlers *handlers.WebSocketHandlers) {
	// Auth routes
	mux.HandleFunc("/login", authHandlers.Login)
	mux.HandleFunc("/register", authHandlers.Register)

	// Room routes
	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rooms" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			roomHandlers.ListRooms(w, r)
		case http.MethodPost:
			roomHandlers.CreateRoom(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Room sub-routes
	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		// /rooms/{id}/settings
		if len(parts) == 4 && parts[3] == "settings" {
			switch r.Method {
			case http.MethodGet:
				roomHandlers.GetSettings(w, r)
			case http.MethodPatch, http.MethodPut:
				roomHandlers.UpdateSettings(w, r)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		// /rooms/{id}/presence
		if len(parts) == 4 && parts[3] == "presence" && r.Method == http.MethodGet {
			roomHandlers.GetPresence(w, r)
			return
		}

		// /rooms/{id} DELETE
		if len(parts) == 3 && r.Method == http.MethodDelete {
			roomHandlers.DeactivateRoom(w, r)
			return
		}

		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	// WebSocket routes
	mux.HandleFunc("/ws/chat/{roomID}", wsHandlers.HandleChatSocket)
	mux.HandleFunc("/ws/speech", wsHandlers.HandleSpeechSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
