package server

// Presence maps live connections to the usernames bound to them, in both
// directions. The most recent login of a username wins; the connection it
// replaced stays open but no longer resolves to anyone.
type Presence struct {
	usernames   map[string]string // connection id -> username
	connections map[string]string // username -> connection id
}

func NewPresence() *Presence {
	return &Presence{
		usernames:   make(map[string]string),
		connections: make(map[string]string),
	}
}

func (p *Presence) SetOnline(connId, username string) {
	if prev, ok := p.usernames[connId]; ok && prev != username {
		if p.connections[prev] == connId {
			delete(p.connections, prev)
		}
	}

	if prevConn, ok := p.connections[username]; ok && prevConn != connId {
		delete(p.usernames, prevConn)
	}

	p.usernames[connId] = username
	p.connections[username] = connId
}

// SetOffline drops the entry for connId and returns the username that was
// bound to it, or "" if the connection never logged in or was superseded.
func (p *Presence) SetOffline(connId string) string {
	username, ok := p.usernames[connId]
	if !ok {
		return ""
	}

	delete(p.usernames, connId)
	if p.connections[username] == connId {
		delete(p.connections, username)
	}

	return username
}

func (p *Presence) IsOnline(username string) bool {
	_, ok := p.connections[username]
	return ok
}

func (p *Presence) ConnectionId(username string) (string, bool) {
	id, ok := p.connections[username]
	return id, ok
}

func (p *Presence) Username(connId string) (string, bool) {
	username, ok := p.usernames[connId]
	return username, ok
}

func (p *Presence) Len() int {
	return len(p.connections)
}
