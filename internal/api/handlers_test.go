package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-messenger/internal/server"
	"github.com/npezzotti/go-messenger/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userResponse struct {
	Success bool       `json:"success"`
	User    types.User `json:"user"`
}

type usersResponse struct {
	Success bool                `json:"success"`
	Users   []types.UserSummary `json:"users"`
}

type chatsResponse struct {
	Success bool                `json:"success"`
	Chats   []types.ChatSummary `json:"chats"`
}

type messagesResponse struct {
	Success  bool            `json:"success"`
	Messages []types.Message `json:"messages"`
}

type urlResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

func (app *testApp) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (app *testApp) get(t *testing.T, target string, v any) *httptest.ResponseRecorder {
	t.Helper()
	rr := app.do(t, httptest.NewRequest(http.MethodGet, target, nil))
	if v != nil {
		require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(v), rr.Body.String())
	}
	return rr
}

func (app *testApp) register(t *testing.T, username string) (*httptest.ResponseRecorder, userResponse) {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q}`, username)
	rr := app.do(t, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body)))

	var res userResponse
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&res))
	return rr, res
}

func decodeApiError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var apiErr ApiError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
	assert.False(t, apiErr.Success)
	assert.Equal(t, rr.Code, apiErr.StatusCode)
	return apiErr
}

func Test_healthCheck(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestRegisterHandler(t *testing.T) {
	app := newTestApp(t)

	rr, first := app.register(t, "  Alice")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, first.Success)
	assert.Equal(t, "alice", first.User.Username)
	assert.False(t, first.User.IsOnline)

	rr, again := app.register(t, "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, first.User.CreatedAt, again.User.CreatedAt, "existing user is returned unchanged")

	rr = app.do(t, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(`{"username":"a"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "username must be at least 2 characters", decodeApiError(t, rr).Message)

	rr = app.do(t, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	decodeApiError(t, rr)
}

func TestGetUserHandler(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "alice")

	var res userResponse
	rr := app.get(t, "/api/user/Alice", &res)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, res.Success)
	assert.Equal(t, "alice", res.User.Username)

	rr = app.do(t, httptest.NewRequest(http.MethodGet, "/api/user/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, `user "ghost" not found`, decodeApiError(t, rr).Message)
}

func TestSearchUsersHandler(t *testing.T) {
	app := newTestApp(t)
	for _, u := range []string{"alice", "alicia", "bob"} {
		app.register(t, u)
	}

	tcases := []struct {
		name     string
		target   string
		expected []string
	}{
		{name: "substring", target: "/api/users/search?q=ali", expected: []string{"alice", "alicia"}},
		{name: "case insensitive", target: "/api/users/search?q=BO", expected: []string{"bob"}},
		{name: "exclude", target: "/api/users/search?q=ali&exclude=alice", expected: []string{"alicia"}},
		{name: "blank query", target: "/api/users/search?q=%20", expected: []string{}},
		{name: "missing query", target: "/api/users/search", expected: []string{}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var res usersResponse
			rr := app.get(t, tc.target, &res)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.True(t, res.Success)

			names := []string{}
			for _, u := range res.Users {
				names = append(names, u.Username)
			}
			assert.Equal(t, tc.expected, names)
		})
	}
}

func TestUnknownUserListsAreEmpty(t *testing.T) {
	app := newTestApp(t)

	var chats chatsResponse
	rr := app.get(t, "/api/chats/ghost", &chats)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, chats.Success)
	assert.Empty(t, chats.Chats)
	assert.Contains(t, rr.Body.String(), `"chats":[]`)

	var msgs messagesResponse
	rr = app.get(t, "/api/messages/ghost/nobody", &msgs)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"messages":[]`)
}

func TestCORS(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := app.do(t, req)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.test")
	rr = app.do(t, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func multipartRequest(t *testing.T, target, field, filename, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}

	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandlers(t *testing.T) {
	t.Run("avatar updates profile", func(t *testing.T) {
		app := newTestApp(t)
		app.register(t, "alice")
		data := bytes.Repeat([]byte{0x89}, 2<<20)

		rr := app.do(t, multipartRequest(t, "/api/upload/avatar", "avatar", "me.png", "image/png", data,
			map[string]string{"username": "alice"}))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var res urlResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.True(t, res.Success)
		assert.True(t, strings.HasPrefix(res.URL, "/uploads/"))

		var user userResponse
		app.get(t, "/api/user/alice", &user)
		assert.Equal(t, res.URL, user.User.AvatarRef)
		assert.Empty(t, user.User.BannerRef)

		served := app.do(t, httptest.NewRequest(http.MethodGet, res.URL, nil))
		require.Equal(t, http.StatusOK, served.Code)
		assert.Equal(t, data, served.Body.Bytes())
	})

	t.Run("banner updates profile", func(t *testing.T) {
		app := newTestApp(t)
		app.register(t, "alice")

		rr := app.do(t, multipartRequest(t, "/api/upload/banner", "banner", "wide.jpg", "image/jpeg", []byte("jpg"),
			map[string]string{"username": "alice"}))
		require.Equal(t, http.StatusOK, rr.Code)

		var res urlResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))

		var user userResponse
		app.get(t, "/api/user/alice", &user)
		assert.Equal(t, res.URL, user.User.BannerRef)
	})

	t.Run("avatar for unknown user is still stored", func(t *testing.T) {
		app := newTestApp(t)

		rr := app.do(t, multipartRequest(t, "/api/upload/avatar", "avatar", "me.gif", "image/gif", []byte("gif"),
			map[string]string{"username": "ghost"}))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("chat image", func(t *testing.T) {
		app := newTestApp(t)

		rr := app.do(t, multipartRequest(t, "/api/upload/chat-image", "image", "cat.webp", "image/webp", []byte("webp"), nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var res urlResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, ".webp", path.Ext(res.URL))
	})

	errorCases := []struct {
		name        string
		target      string
		field       string
		filename    string
		contentType string
		size        int
		code        int
	}{
		{name: "too large", target: "/api/upload/chat-image", field: "image", filename: "big.png", contentType: "image/png", size: 15 << 20, code: http.StatusRequestEntityTooLarge},
		{name: "just over limit", target: "/api/upload/chat-image", field: "image", filename: "big.png", contentType: "image/png", size: 10<<20 + 512, code: http.StatusRequestEntityTooLarge},
		{name: "wrong extension", target: "/api/upload/avatar", field: "avatar", filename: "run.exe", contentType: "image/png", size: 10, code: http.StatusUnsupportedMediaType},
		{name: "wrong mime", target: "/api/upload/banner", field: "banner", filename: "a.png", contentType: "text/plain", size: 10, code: http.StatusUnsupportedMediaType},
		{name: "wrong field", target: "/api/upload/avatar", field: "image", filename: "a.png", contentType: "image/png", size: 10, code: http.StatusBadRequest},
		{name: "no file", target: "/api/upload/chat-image", code: http.StatusBadRequest},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)

			rr := app.do(t, multipartRequest(t, tc.target, tc.field, tc.filename, tc.contentType, make([]byte, tc.size), nil))
			assert.Equal(t, tc.code, rr.Code)
			decodeApiError(t, rr)
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		app := newTestApp(t)

		rr := app.do(t, httptest.NewRequest(http.MethodPost, "/api/upload/chat-image", strings.NewReader("{}")))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func dialWs(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

// readUntil reads server messages from conn until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(*server.ServerMessage) bool) *server.ServerMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg server.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(&msg) {
			return &msg
		}
	}
}

func isResponseTo(id int) func(*server.ServerMessage) bool {
	return func(m *server.ServerMessage) bool {
		return m.Id == id && (m.Response != nil || m.Message != nil)
	}
}

func TestServeWs(t *testing.T) {
	t.Run("rejects unknown origin", func(t *testing.T) {
		app := newTestApp(t)
		srv := httptest.NewServer(app.srv.Handler)
		defer srv.Close()

		_, resp, err := dialWs(t, srv, "http://evil.test")
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("conversation between two users", func(t *testing.T) {
		app := newTestApp(t)
		app.register(t, "alice")
		app.register(t, "bob")
		srv := httptest.NewServer(app.srv.Handler)
		defer srv.Close()

		alice, resp, err := dialWs(t, srv, "http://localhost:3000")
		require.NoError(t, err)
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
		bob, _, err := dialWs(t, srv, "")
		require.NoError(t, err)

		require.NoError(t, alice.WriteJSON(map[string]any{"id": 1, "login": map[string]string{"username": "alice"}}))
		res := readUntil(t, alice, isResponseTo(1))
		assert.Equal(t, http.StatusOK, res.Response.ResponseCode)

		require.NoError(t, bob.WriteJSON(map[string]any{"id": 1, "login": map[string]string{"username": "bob"}}))
		readUntil(t, bob, isResponseTo(1))
		readUntil(t, alice, func(m *server.ServerMessage) bool {
			return m.Notification != nil && m.Notification.Presence != nil && m.Notification.Presence.Username == "bob"
		})

		var user userResponse
		app.get(t, "/api/user/bob", &user)
		assert.True(t, user.User.IsOnline)

		require.NoError(t, alice.WriteJSON(map[string]any{"id": 2, "send": map[string]string{"to": "bob", "content": "hello bob"}}))
		echo := readUntil(t, alice, isResponseTo(2))
		require.NotNil(t, echo.Message)
		assert.Equal(t, "hello bob", echo.Message.Content)

		got := readUntil(t, bob, func(m *server.ServerMessage) bool { return m.Message != nil })
		assert.Equal(t, echo.Message.Id, got.Message.Id)
		update := readUntil(t, bob, func(m *server.ServerMessage) bool {
			return m.Notification != nil && m.Notification.ChatUpdate != nil
		})
		assert.Equal(t, "alice", update.Notification.ChatUpdate.Username)

		require.NoError(t, bob.WriteJSON(map[string]any{"typing_start": map[string]string{"to": "alice"}}))
		typing := readUntil(t, alice, func(m *server.ServerMessage) bool {
			return m.Notification != nil && m.Notification.TypingShow != nil
		})
		assert.Equal(t, "bob", typing.Notification.TypingShow.From)

		var msgs messagesResponse
		app.get(t, "/api/messages/bob/alice", &msgs)
		require.Len(t, msgs.Messages, 1)
		assert.Equal(t, "hello bob", msgs.Messages[0].Content)

		var chats chatsResponse
		app.get(t, "/api/chats/bob", &chats)
		require.Len(t, chats.Chats, 1)
		assert.Equal(t, "alice", chats.Chats[0].Username)
		assert.True(t, chats.Chats[0].IsOnline)
		assert.Equal(t, echo.Message.Id, chats.Chats[0].LastMessage.Id)

		bob.Close()
		offline := readUntil(t, alice, func(m *server.ServerMessage) bool {
			return m.Notification != nil && m.Notification.Presence != nil && !m.Notification.Presence.IsOnline
		})
		assert.Equal(t, "bob", offline.Notification.Presence.Username)
	})

	t.Run("image message with uploaded file", func(t *testing.T) {
		app := newTestApp(t)
		app.register(t, "alice")
		app.register(t, "bob")
		srv := httptest.NewServer(app.srv.Handler)
		defer srv.Close()

		data := bytes.Repeat([]byte{0x89}, 2<<20)
		rr := app.do(t, multipartRequest(t, "/api/upload/chat-image", "image", "photo.png", "image/png", data, nil))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var uploaded urlResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&uploaded))

		alice, _, err := dialWs(t, srv, "")
		require.NoError(t, err)
		require.NoError(t, alice.WriteJSON(map[string]any{"id": 1, "login": map[string]string{"username": "alice"}}))
		readUntil(t, alice, isResponseTo(1))

		require.NoError(t, alice.WriteJSON(map[string]any{"id": 2, "send": map[string]string{
			"to":       "bob",
			"type":     "image",
			"file_ref": uploaded.URL,
		}}))
		echo := readUntil(t, alice, isResponseTo(2))
		require.NotNil(t, echo.Message, "expected the image message to be accepted")
		assert.Equal(t, types.MessageTypeImage, echo.Message.Type)
		assert.Equal(t, uploaded.URL, echo.Message.FileRef)

		var msgs messagesResponse
		app.get(t, "/api/messages/alice/bob", &msgs)
		require.Len(t, msgs.Messages, 1)
		assert.Equal(t, uploaded.URL, msgs.Messages[0].FileRef)

		served := app.do(t, httptest.NewRequest(http.MethodGet, msgs.Messages[0].FileRef, nil))
		require.Equal(t, http.StatusOK, served.Code)
		assert.Equal(t, data, served.Body.Bytes())
	})

	t.Run("invalid json", func(t *testing.T) {
		app := newTestApp(t)
		srv := httptest.NewServer(app.srv.Handler)
		defer srv.Close()

		conn, _, err := dialWs(t, srv, "")
		require.NoError(t, err)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		res := readUntil(t, conn, func(m *server.ServerMessage) bool { return m.Response != nil })
		assert.Equal(t, http.StatusBadRequest, res.Response.ResponseCode)
	})
}

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := newTestApp(t)
	app.log.SetOutput(buf)

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	app.errorHandler(panicHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: boom")
	decodeApiError(t, rr)
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &MessengerApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	app.errorHandler(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}
