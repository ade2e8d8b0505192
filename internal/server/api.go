package server

import (
	"context"
	"errors"
	"strings"

	"github.com/npezzotti/go-messenger/internal/apperror"
	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/types"
)

var ErrServerStopped = errors.New("chat server stopped")

// exec runs fn as one turn of the run loop.
func (cs *ChatServer) exec(ctx context.Context, fn func()) error {
	req := &apiReq{fn: fn, done: make(chan struct{})}

	select {
	case cs.reqChan <- req:
	case <-cs.done:
		return ErrServerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// once accepted the request always completes
	<-req.done
	return nil
}

func call[T any](ctx context.Context, cs *ChatServer, fn func() (T, error)) (T, error) {
	var (
		res    T
		resErr error
	)

	if err := cs.exec(ctx, func() { res, resErr = fn() }); err != nil {
		var zero T
		return zero, err
	}

	return res, resErr
}

// Register creates username, or returns the existing user if it is taken.
func (cs *ChatServer) Register(ctx context.Context, username string) (types.User, error) {
	return call(ctx, cs, func() (types.User, error) {
		name, err := NormalizeUsername(username)
		if err != nil {
			return types.User{}, err
		}

		u, err := cs.directory.Create(name)
		if errors.Is(err, apperror.ErrAlreadyExists) {
			return cs.directory.Get(name)
		}
		if err != nil {
			return types.User{}, err
		}

		cs.stats.Incr(metricUsers)
		cs.log.Printf("registered user %q", name)
		return u, nil
	})
}

func (cs *ChatServer) GetUser(ctx context.Context, username string) (types.User, error) {
	return call(ctx, cs, func() (types.User, error) {
		return cs.directory.Get(canonical(username))
	})
}

// SearchUsers matches query as a case-insensitive substring of usernames.
// A blank query matches nothing.
func (cs *ChatServer) SearchUsers(ctx context.Context, query, exclude string) ([]types.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []types.UserSummary{}, nil
	}

	return call(ctx, cs, func() ([]types.UserSummary, error) {
		return cs.directory.Search(strings.ToLower(query), canonical(exclude))
	})
}

// GetChats lists the conversations of username. An unknown user has none.
func (cs *ChatServer) GetChats(ctx context.Context, username string) ([]types.ChatSummary, error) {
	return call(ctx, cs, func() ([]types.ChatSummary, error) {
		chats, err := cs.directory.ListChats(canonical(username))
		if errors.Is(err, apperror.ErrNotFound) {
			return []types.ChatSummary{}, nil
		}
		return chats, err
	})
}

func (cs *ChatServer) GetMessages(ctx context.Context, user1, user2 string) ([]types.Message, error) {
	return call(ctx, cs, func() ([]types.Message, error) {
		return cs.messages.History(canonical(user1), canonical(user2), 0)
	})
}

// UpdateProfile sets the image references that are non-nil.
func (cs *ChatServer) UpdateProfile(ctx context.Context, username string, avatarRef, bannerRef *string) (types.User, error) {
	return call(ctx, cs, func() (types.User, error) {
		name := canonical(username)
		if name == "" {
			return types.User{}, apperror.ValidationFailed("username", "username is required")
		}

		return cs.directory.Update(database.UpdateUserParams{
			Username:  name,
			AvatarRef: avatarRef,
			BannerRef: bannerRef,
		})
	})
}

// Ping checks that the run loop is serving and the repository is reachable.
func (cs *ChatServer) Ping(ctx context.Context) error {
	_, err := call(ctx, cs, func() (struct{}, error) {
		return struct{}{}, cs.directory.db.Ping()
	})
	return err
}
