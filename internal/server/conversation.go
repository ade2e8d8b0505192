package server

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/go-messenger/internal/apperror"
)

const minUsernameLength = 2

// ConversationId identifies the conversation between two users regardless of
// which of them is the sender. The first name is length-prefixed so that no
// two distinct pairs share an id, whatever characters the names contain.
func ConversationId(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + "_" + b
}

// NormalizeUsername canonicalizes a username for registration and rejects
// names that are too short.
func NormalizeUsername(username string) (string, error) {
	name := canonical(username)
	if utf8.RuneCountInString(name) < minUsernameLength {
		return "", apperror.ValidationFailed("username", "username must be at least 2 characters")
	}

	return name, nil
}

func canonical(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
