package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-messenger/internal/apperror"
	"github.com/npezzotti/go-messenger/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Login       *Login  `json:"login,omitempty"`
	Send        *Send   `json:"send,omitempty"`
	TypingStart *Typing `json:"typing_start,omitempty"`
	TypingStop  *Typing `json:"typing_stop,omitempty"`
	client      *Client `json:"-"`
	disconnect  bool    `json:"-"`
}

type Login struct {
	Username string `json:"username"`
}

type Send struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Content string            `json:"content"`
	Type    types.MessageType `json:"type"`
	FileRef string            `json:"file_ref,omitempty"`
}

type Typing struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Presence   *PresenceChange `json:"presence,omitempty"`
	TypingShow *TypingNotice   `json:"typing_show,omitempty"`
	TypingHide *TypingNotice   `json:"typing_hide,omitempty"`
	ChatUpdate *ChatUpdate     `json:"chat_update,omitempty"`
}

type PresenceChange struct {
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

type TypingNotice struct {
	From string `json:"from"`
}

type ChatUpdate struct {
	Username    string         `json:"username"`
	LastMessage *types.Message `json:"last_message"`
}

func newResponse(id, code int, errMsg string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return newResponse(id, http.StatusOK, "", data)
}

func ErrBadRequest(id int, msg string) *ServerMessage {
	return newResponse(id, http.StatusBadRequest, msg, nil)
}

func ErrNotFound(id int, msg string) *ServerMessage {
	return newResponse(id, http.StatusNotFound, msg, nil)
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func ErrTooManyRequests(id int) *ServerMessage {
	return newResponse(id, http.StatusTooManyRequests, "too many requests", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := newResponse(0, http.StatusBadRequest, "invalid message format", nil)
	if id > 0 {
		msg.Id = id
	}
	return msg
}

// ErrFromError converts a domain error into a response for the connection
// that caused it.
func ErrFromError(id int, err error) *ServerMessage {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return ErrInternalError(id)
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return ErrBadRequest(id, appErr.Message)
	case errors.Is(err, apperror.ErrNotFound):
		return ErrNotFound(id, appErr.Message)
	}

	return ErrInternalError(id)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
