package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/npezzotti/go-messenger/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_CreateUser(t *testing.T) {
	repo := NewMemoryRepository()
	now := time.Now().UTC()

	u, err := repo.CreateUser("alice", now)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, now, u.CreatedAt)
	assert.Empty(t, u.ChatPartners)

	_, err = repo.CreateUser("alice", now.Add(time.Hour))
	assert.ErrorIs(t, err, apperror.ErrAlreadyExists, "expected duplicate create to fail")

	got, err := repo.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, now, got.CreatedAt, "expected created_at to be unchanged by duplicate create")
}

func TestMemoryRepository_GetUser_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.GetUser("nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMemoryRepository_UpdateUser(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.CreateUser("alice", time.Now())
	require.NoError(t, err)

	avatar := "/uploads/a.png"
	u, err := repo.UpdateUser(UpdateUserParams{Username: "alice", AvatarRef: &avatar})
	require.NoError(t, err)
	assert.Equal(t, avatar, u.AvatarRef)
	assert.Empty(t, u.BannerRef)

	banner := "/uploads/b.png"
	u, err = repo.UpdateUser(UpdateUserParams{Username: "alice", BannerRef: &banner})
	require.NoError(t, err)
	assert.Equal(t, avatar, u.AvatarRef, "expected avatar to be left untouched")
	assert.Equal(t, banner, u.BannerRef)

	_, err = repo.UpdateUser(UpdateUserParams{Username: "bob", AvatarRef: &avatar})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMemoryRepository_SearchUsers(t *testing.T) {
	repo := NewMemoryRepository()
	for _, name := range []string{"alice", "bob", "albert", "malory"} {
		_, err := repo.CreateUser(name, time.Now())
		require.NoError(t, err)
	}

	tcases := []struct {
		name    string
		query   string
		exclude string
		want    []string
	}{
		{name: "excludes caller", query: "al", exclude: "alice", want: []string{"albert", "malory"}},
		{name: "insertion order", query: "al", exclude: "", want: []string{"alice", "albert", "malory"}},
		{name: "case insensitive", query: "BO", exclude: "", want: []string{"bob"}},
		{name: "no match", query: "zed", exclude: "", want: []string{}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			users, err := repo.SearchUsers(tc.query, tc.exclude)
			require.NoError(t, err)

			names := []string{}
			for _, u := range users {
				names = append(names, u.Username)
			}
			assert.Equal(t, tc.want, names)
		})
	}
}

func TestMemoryRepository_AddChatPartner(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.CreateUser("alice", time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.AddChatPartner("alice", "bob"))
	require.NoError(t, repo.AddChatPartner("alice", "carol"))
	require.NoError(t, repo.AddChatPartner("alice", "bob"))

	u, err := repo.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, u.ChatPartners, "expected partners in first-contact order without duplicates")

	assert.ErrorIs(t, repo.AddChatPartner("nobody", "alice"), apperror.ErrNotFound)
}

func TestMemoryRepository_GetUser_ReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.CreateUser("alice", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.AddChatPartner("alice", "bob"))

	u, err := repo.GetUser("alice")
	require.NoError(t, err)
	u.ChatPartners[0] = "mallory"

	again, err := repo.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, again.ChatPartners, "expected stored partners to be unaffected by caller mutation")
}

func TestMemoryRepository_GetMessages(t *testing.T) {
	repo := NewMemoryRepository()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateMessage(Message{
			Id:             fmt.Sprintf("m%d", i),
			ConversationId: "alice_bob",
		}))
	}

	tcases := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "limit below total", limit: 2, want: []string{"m3", "m4"}},
		{name: "limit equals total", limit: 5, want: []string{"m0", "m1", "m2", "m3", "m4"}},
		{name: "limit above total", limit: 100, want: []string{"m0", "m1", "m2", "m3", "m4"}},
		{name: "no limit", limit: 0, want: []string{"m0", "m1", "m2", "m3", "m4"}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msgs, err := repo.GetMessages("alice_bob", tc.limit)
			require.NoError(t, err)

			ids := []string{}
			for _, m := range msgs {
				ids = append(ids, m.Id)
			}
			assert.Equal(t, tc.want, ids)
		})
	}

	msgs, err := repo.GetMessages("carol_dave", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "expected empty conversation to return no messages")
}
