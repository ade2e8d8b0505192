package database

import (
	"slices"
	"strings"
	"time"

	"github.com/npezzotti/go-messenger/internal/apperror"
)

// MemoryRepository keeps users and conversations in process memory.
// Nothing survives a restart.
type MemoryRepository struct {
	users    map[string]*User
	order    []string
	messages map[string][]Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]*User),
		messages: make(map[string][]Message),
	}
}

func (m *MemoryRepository) Ping() error {
	return nil
}

func (m *MemoryRepository) CreateUser(username string, createdAt time.Time) (User, error) {
	if _, ok := m.users[username]; ok {
		return User{}, apperror.AlreadyExists("user", username)
	}

	u := &User{
		Username:     username,
		CreatedAt:    createdAt,
		ChatPartners: []string{},
	}
	m.users[username] = u
	m.order = append(m.order, username)

	return copyUser(u), nil
}

func (m *MemoryRepository) GetUser(username string) (User, error) {
	u, ok := m.users[username]
	if !ok {
		return User{}, apperror.NotFound("user", username)
	}

	return copyUser(u), nil
}

func (m *MemoryRepository) UpdateUser(params UpdateUserParams) (User, error) {
	u, ok := m.users[params.Username]
	if !ok {
		return User{}, apperror.NotFound("user", params.Username)
	}

	if params.AvatarRef != nil {
		u.AvatarRef = *params.AvatarRef
	}
	if params.BannerRef != nil {
		u.BannerRef = *params.BannerRef
	}

	return copyUser(u), nil
}

func (m *MemoryRepository) SearchUsers(query, excludeUsername string) ([]User, error) {
	q := strings.ToLower(query)
	users := []User{}
	for _, name := range m.order {
		if name == excludeUsername {
			continue
		}
		if strings.Contains(strings.ToLower(name), q) {
			users = append(users, copyUser(m.users[name]))
		}
	}

	return users, nil
}

func (m *MemoryRepository) AddChatPartner(username, partner string) error {
	u, ok := m.users[username]
	if !ok {
		return apperror.NotFound("user", username)
	}

	if !slices.Contains(u.ChatPartners, partner) {
		u.ChatPartners = append(u.ChatPartners, partner)
	}

	return nil
}

func (m *MemoryRepository) CreateMessage(msg Message) error {
	m.messages[msg.ConversationId] = append(m.messages[msg.ConversationId], msg)
	return nil
}

// GetMessages returns the newest limit messages oldest first. A limit of
// zero or less returns the whole conversation.
func (m *MemoryRepository) GetMessages(conversationId string, limit int) ([]Message, error) {
	log := m.messages[conversationId]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}

	return slices.Clone(log), nil
}

func copyUser(u *User) User {
	c := *u
	c.ChatPartners = slices.Clone(u.ChatPartners)
	return c
}
