package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/nmorelli/go-chatserver/internal/chat"
	"github.com/nmorelli/go-chatserver/internal/config"
	"github.com/nmorelli/go-chatserver/internal/database"
	"github.com/nmorelli/go-chatserver/internal/server"
)

type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	mux            *http.Server
	cs             *server.ChatServer
	store          *chat.MessageStore
	roster         *chat.GroupRoster
	signingKey     []byte
	allowedOrigins []string
}

// NewChatApp registers the REST and websocket routes on mux. The mux is
// shared with the expvar handler, which is mounted before this runs.
func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, store *chat.MessageStore, roster *chat.GroupRoster, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		store:          store,
		roster:         roster,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))

	mux.Handle("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/messages/{id}/read", s.authMiddleware(s.markMessageRead))
	mux.Handle("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.Handle("DELETE /api/messages/{id}/everyone", s.authMiddleware(s.deleteMessageForEveryone))
	mux.Handle("DELETE /api/messages/{id}/media/{refId}", s.authMiddleware(s.deleteMessageMedia))

	mux.Handle("DELETE /api/conversations/{userId}", s.authMiddleware(s.clearConversation))

	mux.Handle("POST /api/groups", s.authMiddleware(s.createGroup))
	mux.Handle("GET /api/groups/{id}", s.authMiddleware(s.getGroup))
	mux.Handle("PUT /api/groups/{id}", s.authMiddleware(s.updateGroup))
	mux.Handle("POST /api/groups/{id}/members", s.authMiddleware(s.addGroupMembers))
	mux.Handle("DELETE /api/groups/{id}/members", s.authMiddleware(s.removeGroupMembers))
	mux.Handle("POST /api/groups/{id}/admins", s.authMiddleware(s.promoteMember))
	mux.Handle("DELETE /api/groups/{id}/admins/{userId}", s.authMiddleware(s.demoteAdmin))
	mux.Handle("POST /api/groups/{id}/leave", s.authMiddleware(s.leaveGroup))
	mux.Handle("DELETE /api/groups/{id}/chat", s.authMiddleware(s.clearGroupChat))

	mux.Handle("PUT /api/blocks/{userId}", s.authMiddleware(s.createBlock))
	mux.Handle("DELETE /api/blocks/{userId}", s.authMiddleware(s.deleteBlock))

	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
