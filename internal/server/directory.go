package server

import (
	"errors"
	"fmt"
	"slices"

	"github.com/npezzotti/go-messenger/internal/apperror"
	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/types"
)

const (
	ChatOrderFirstContact = "first_contact"
	ChatOrderRecency      = "recency"
)

// Directory holds user records and their chat partner lists. Online status
// is never stored; it is read from the presence registry on every query.
type Directory struct {
	db        database.MessengerRepository
	presence  *Presence
	chatOrder string
}

func NewDirectory(db database.MessengerRepository, presence *Presence, chatOrder string) *Directory {
	if chatOrder == "" {
		chatOrder = ChatOrderFirstContact
	}

	return &Directory{
		db:        db,
		presence:  presence,
		chatOrder: chatOrder,
	}
}

// Create fails with apperror.ErrAlreadyExists for a taken username.
func (d *Directory) Create(username string) (types.User, error) {
	u, err := d.db.CreateUser(username, Now())
	if err != nil {
		return types.User{}, err
	}

	return d.toUser(u), nil
}

func (d *Directory) Get(username string) (types.User, error) {
	u, err := d.db.GetUser(username)
	if err != nil {
		return types.User{}, err
	}

	return d.toUser(u), nil
}

func (d *Directory) Update(params database.UpdateUserParams) (types.User, error) {
	u, err := d.db.UpdateUser(params)
	if err != nil {
		return types.User{}, err
	}

	return d.toUser(u), nil
}

func (d *Directory) Search(query, excludeUsername string) ([]types.UserSummary, error) {
	users, err := d.db.SearchUsers(query, excludeUsername)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	results := make([]types.UserSummary, 0, len(users))
	for _, u := range users {
		results = append(results, types.UserSummary{
			Username:  u.Username,
			AvatarRef: u.AvatarRef,
			IsOnline:  d.presence.IsOnline(u.Username),
		})
	}

	return results, nil
}

// ListChats builds the chat list of username from its partner index. The
// order follows first contact unless the directory sorts by recency.
func (d *Directory) ListChats(username string) ([]types.ChatSummary, error) {
	u, err := d.db.GetUser(username)
	if err != nil {
		return nil, err
	}

	chats := make([]types.ChatSummary, 0, len(u.ChatPartners))
	for _, partner := range u.ChatPartners {
		summary := types.ChatSummary{
			Username: partner,
			IsOnline: d.presence.IsOnline(partner),
		}

		p, err := d.db.GetUser(partner)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		summary.AvatarRef = p.AvatarRef

		last, err := d.db.GetMessages(ConversationId(username, partner), 1)
		if err != nil {
			return nil, fmt.Errorf("last message with %q: %w", partner, err)
		}
		if len(last) > 0 {
			m := toMessage(last[0])
			summary.LastMessage = &m
		}

		chats = append(chats, summary)
	}

	if d.chatOrder == ChatOrderRecency {
		slices.SortStableFunc(chats, byRecency)
	}

	return chats, nil
}

func (d *Directory) AddChatPartner(username, partner string) error {
	return d.db.AddChatPartner(username, partner)
}

func (d *Directory) toUser(u database.User) types.User {
	return types.User{
		Username:  u.Username,
		AvatarRef: u.AvatarRef,
		BannerRef: u.BannerRef,
		IsOnline:  d.presence.IsOnline(u.Username),
		CreatedAt: u.CreatedAt,
	}
}

// byRecency puts the most recently active chat first; chats without
// messages go last.
func byRecency(a, b types.ChatSummary) int {
	switch {
	case a.LastMessage == nil && b.LastMessage == nil:
		return 0
	case a.LastMessage == nil:
		return 1
	case b.LastMessage == nil:
		return -1
	}

	return b.LastMessage.Timestamp.Compare(a.LastMessage.Timestamp)
}
