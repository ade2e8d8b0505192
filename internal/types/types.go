package types

import (
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

type User struct {
	Username  string    `json:"username"`
	AvatarRef string    `json:"avatar_ref,omitempty"`
	BannerRef string    `json:"banner_ref,omitempty"`
	IsOnline  bool      `json:"is_online"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the search result view of a user.
type UserSummary struct {
	Username  string `json:"username"`
	AvatarRef string `json:"avatar_ref,omitempty"`
	IsOnline  bool   `json:"is_online"`
}

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	Username    string   `json:"username"`
	AvatarRef   string   `json:"avatar_ref,omitempty"`
	IsOnline    bool     `json:"is_online"`
	LastMessage *Message `json:"last_message"`
}

type Message struct {
	Id        string      `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	FileRef   string      `json:"file_ref,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Read      bool        `json:"read"`
}
