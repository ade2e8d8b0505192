package database

import "time"

type User struct {
	Username     string
	AvatarRef    string
	BannerRef    string
	CreatedAt    time.Time
	ChatPartners []string
}

type Message struct {
	Id             string
	ConversationId string
	From           string
	To             string
	Content        string
	Type           string
	FileRef        string
	CreatedAt      time.Time
	Read           bool
}

// UpdateUserParams carries a partial user update; nil fields are left as is.
type UpdateUserParams struct {
	Username  string
	AvatarRef *string
	BannerRef *string
}
