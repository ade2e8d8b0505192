package database

import "time"

// MessengerRepository is the storage behind the user directory and the
// message store. Implementations are not required to be safe for concurrent
// use; the chat server serializes all calls.
type MessengerRepository interface {
	Ping() error
	CreateUser(username string, createdAt time.Time) (User, error)
	GetUser(username string) (User, error)
	UpdateUser(params UpdateUserParams) (User, error)
	SearchUsers(query, excludeUsername string) ([]User, error)
	AddChatPartner(username, partner string) error
	CreateMessage(msg Message) error
	GetMessages(conversationId string, limit int) ([]Message, error)
}
