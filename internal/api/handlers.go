package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-messenger/internal/server"
)

type RegisterRequest struct {
	Username string `json:"username"`
}

func (s *MessengerApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// writeOK writes {"success": true, key: v}.
func (s *MessengerApp) writeOK(w http.ResponseWriter, key string, v any) {
	s.writeJson(w, http.StatusOK, map[string]any{
		"success": true,
		key:       v,
	})
}

func (s *MessengerApp) writeError(w http.ResponseWriter, err error) {
	errResp := errorFromApp(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Printf("request failed: %v", err)
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *MessengerApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.cs.Ping(r.Context()); err != nil {
		s.log.Printf("health check failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *MessengerApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError("invalid request body")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.cs.Register(r.Context(), req.Username)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOK(w, "user", user)
}

func (s *MessengerApp) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.cs.GetUser(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOK(w, "user", user)
}

func (s *MessengerApp) searchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := s.cs.SearchUsers(r.Context(), q.Get("q"), q.Get("exclude"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOK(w, "users", users)
}

func (s *MessengerApp) getChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.cs.GetChats(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOK(w, "chats", chats)
}

func (s *MessengerApp) getMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.cs.GetMessages(r.Context(), r.PathValue("user1"), r.PathValue("user2"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeOK(w, "messages", msgs)
}

func (s *MessengerApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients send no origin
		return true
	}

	return slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin)
}

func (s *MessengerApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log)
	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
