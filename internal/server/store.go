package server

import (
	"fmt"

	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/types"
	"github.com/rs/xid"
)

const defaultHistoryLimit = 100

// MessageStore keeps the append-only message log of every conversation.
type MessageStore struct {
	db        database.MessengerRepository
	directory *Directory
	limit     int
}

func NewMessageStore(db database.MessengerRepository, directory *Directory, limit int) *MessageStore {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	return &MessageStore{
		db:        db,
		directory: directory,
		limit:     limit,
	}
}

// Append stores a new message and records both users as each other's chat
// partners. Content rules are checked by the caller.
func (s *MessageStore) Append(from, to, content string, msgType types.MessageType, fileRef string) (types.Message, error) {
	msg := database.Message{
		Id:             xid.New().String(),
		ConversationId: ConversationId(from, to),
		From:           from,
		To:             to,
		Content:        content,
		Type:           string(msgType),
		FileRef:        fileRef,
		CreatedAt:      Now(),
	}

	if err := s.db.CreateMessage(msg); err != nil {
		return types.Message{}, err
	}

	if err := s.directory.AddChatPartner(from, to); err != nil {
		return types.Message{}, fmt.Errorf("add chat partner: %w", err)
	}
	if err := s.directory.AddChatPartner(to, from); err != nil {
		return types.Message{}, fmt.Errorf("add chat partner: %w", err)
	}

	return toMessage(msg), nil
}

// History returns at most the last limit messages between a and b, oldest
// first. A non-positive limit uses the store default.
func (s *MessageStore) History(a, b string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = s.limit
	}

	msgs, err := s.db.GetMessages(ConversationId(a, b), limit)
	if err != nil {
		return nil, err
	}

	history := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, toMessage(m))
	}

	return history, nil
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		From:      m.From,
		To:        m.To,
		Content:   m.Content,
		Type:      types.MessageType(m.Type),
		FileRef:   m.FileRef,
		Timestamp: m.CreatedAt,
		Read:      m.Read,
	}
}
