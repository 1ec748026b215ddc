package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"clipstream-chat-server/api"
	"clipstream-chat-server/auth"
	"clipstream-chat-server/directory"
	"clipstream-chat-server/dispatch"
	"clipstream-chat-server/hub"
	"clipstream-chat-server/liveness"
	"clipstream-chat-server/protocol"
	ws "clipstream-chat-server/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}
	setupLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET must be set")
		os.Exit(1)
	}
	verifier := auth.NewVerifier(secret)

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "clipstream.db"
	}
	store, err := directory.Open(dbPath)
	if err != nil {
		slog.Error("opening directory store", "error", err)
		os.Exit(1)
	}

	registry := hub.New()
	handler := protocol.NewHandler(registry)
	dispatcher := dispatch.New(registry)
	sessions := liveness.NewSet()
	monitor := liveness.NewMonitor(sessions, pingInterval())

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(monitorCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(verifier, registry, handler, sessions))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(registry, sessions))
	api.NewServer(store, dispatcher, verifier).Register(mux)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	stopMonitor()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func pingInterval() time.Duration {
	raw := os.Getenv("PING_INTERVAL")
	if raw == "" {
		return liveness.DefaultInterval
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid PING_INTERVAL, using default", "value", raw)
		return liveness.DefaultInterval
	}
	return d
}

// wsHandler upgrades the connection and authenticates it before any frame
// is processed. The bearer token travels in the Sec-WebSocket-Protocol
// header; a bad token closes the transport with no response frame.
func wsHandler(verifier *auth.Verifier, registry *hub.Hub, handler *protocol.Handler, sessions *liveness.Set) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Sec-Websocket-Protocol")

		var responseHeader http.Header
		if token != "" {
			responseHeader = http.Header{"Sec-Websocket-Protocol": {token}}
		}

		conn, err := upgrader.Upgrade(w, r, responseHeader)
		if err != nil {
			slog.Error("upgrade error", "error", err)
			return
		}

		session := ws.NewConn(uuid.New().String(), conn, registry, handler)

		userID, err := verifier.Verify(token)
		if err != nil {
			slog.Warn("websocket auth failed", "clientId", session.ID(), "error", err)
			session.Reject()
			return
		}

		session.OnClose(func() { sessions.Remove(session.ID()) })
		session.Open(userID)
		sessions.Add(session)

		slog.Info("client connected", "clientId", session.ID(), "userId", userID)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(registry *hub.Hub, sessions *liveness.Set) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, joined := registry.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{
			"rooms":       rooms,
			"joined":      joined,
			"connections": sessions.Len(),
		})
	}
}
