package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-messenger/internal/config"
	"github.com/npezzotti/go-messenger/internal/server"
	"github.com/npezzotti/go-messenger/internal/upload"
)

type MessengerApp struct {
	log            *log.Logger
	srv            *http.Server
	cs             *server.ChatServer
	blobs          upload.BlobStore
	allowedOrigins []string
}

// NewMessengerApp mounts the HTTP API, the websocket endpoint and the upload
// file server on mux.
func NewMessengerApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, blobs *upload.LocalStore, cfg *config.Config) *MessengerApp {
	s := &MessengerApp{
		log:            logger,
		cs:             cs,
		blobs:          blobs,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/register", s.register)
	mux.HandleFunc("GET /api/user/{username}", s.getUser)
	mux.HandleFunc("GET /api/users/search", s.searchUsers)
	mux.HandleFunc("GET /api/chats/{username}", s.getChats)
	mux.HandleFunc("GET /api/messages/{user1}/{user2}", s.getMessages)
	mux.HandleFunc("POST /api/upload/avatar", s.uploadProfileImage("avatar"))
	mux.HandleFunc("POST /api/upload/banner", s.uploadProfileImage("banner"))
	mux.HandleFunc("POST /api/upload/chat-image", s.uploadChatImage)
	mux.HandleFunc("GET /ws", s.serveWs)

	prefix := cfg.UploadURLPrefix + "/"
	mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(blobs.Dir()))))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)
	h = handlers.CombinedLoggingHandler(logger.Writer(), h)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *MessengerApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *MessengerApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
