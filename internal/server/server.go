package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/npezzotti/go-messenger/internal/apperror"
	"github.com/npezzotti/go-messenger/internal/database"
	"github.com/npezzotti/go-messenger/internal/stats"
	"github.com/npezzotti/go-messenger/internal/types"
	"golang.org/x/time/rate"
)

const (
	metricActiveClients = "NumActiveClients"
	metricOnlineUsers   = "NumOnlineUsers"
	metricUsers         = "NumUsers"
	metricMessages      = "NumMessages"

	defaultEventRate  = 20
	defaultEventBurst = 40
)

type Options struct {
	// HistoryLimit caps the number of messages returned by GetMessages.
	HistoryLimit int
	// ChatOrder is ChatOrderFirstContact (default) or ChatOrderRecency.
	ChatOrder string
	// EventRate and EventBurst bound inbound websocket events per connection.
	EventRate  float64
	EventBurst int
}

type stopReq struct {
	done chan struct{}
}

type apiReq struct {
	fn   func()
	done chan struct{}
}

// ChatServer is the delivery engine. Run owns the directory, the message
// store and the presence registry; every event and request is handled as a
// single turn of its loop.
type ChatServer struct {
	log           *log.Logger
	stats         stats.StatsProvider
	presence      *Presence
	directory     *Directory
	messages      *MessageStore
	clients       map[string]*Client
	registerChan  chan *Client
	clientMsgChan chan *ClientMessage
	reqChan       chan *apiReq
	stop          chan stopReq
	done          chan struct{}
	eventRate     rate.Limit
	eventBurst    int
}

func NewChatServer(logger *log.Logger, db database.MessengerRepository, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if db == nil {
		return nil, errors.New("repository is required")
	}

	switch opts.ChatOrder {
	case "", ChatOrderFirstContact, ChatOrderRecency:
	default:
		return nil, fmt.Errorf("unknown chat order %q", opts.ChatOrder)
	}

	if opts.EventRate <= 0 {
		opts.EventRate = defaultEventRate
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = defaultEventBurst
	}

	for _, name := range []string{metricActiveClients, metricOnlineUsers, metricUsers, metricMessages} {
		su.RegisterMetric(name)
	}

	presence := NewPresence()
	directory := NewDirectory(db, presence, opts.ChatOrder)

	return &ChatServer{
		log:           logger,
		stats:         su,
		presence:      presence,
		directory:     directory,
		messages:      NewMessageStore(db, directory, opts.HistoryLimit),
		clients:       make(map[string]*Client),
		registerChan:  make(chan *Client),
		clientMsgChan: make(chan *ClientMessage, 256),
		reqChan:       make(chan *apiReq),
		stop:          make(chan stopReq),
		done:          make(chan struct{}),
		eventRate:     rate.Limit(opts.EventRate),
		eventBurst:    opts.EventBurst,
	}, nil
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection %q", client.id)
			cs.addClient(client)
		case msg := <-cs.clientMsgChan:
			cs.handleClientMessage(msg)
		case req := <-cs.reqChan:
			req.fn()
			close(req.done)
		case req := <-cs.stop:
			cs.log.Println("stopping chat server")
			for _, c := range cs.clients {
				c.stopClient()
			}
			close(req.done)
			return
		}
	}
}

// Shutdown stops the run loop and signals every connection to close.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
	}
}

// DeregisterClient queues the disconnect of c behind every event c has
// already dispatched, so those events are handled first.
func (cs *ChatServer) DeregisterClient(c *Client) {
	select {
	case cs.clientMsgChan <- &ClientMessage{client: c, disconnect: true}:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c.id] = c
	cs.stats.Incr(metricActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) bool {
	if _, ok := cs.clients[c.id]; !ok {
		return false
	}

	delete(cs.clients, c.id)
	cs.stats.Decr(metricActiveClients)
	return true
}

func (cs *ChatServer) handleClientMessage(msg *ClientMessage) {
	if msg.disconnect {
		cs.log.Printf("removing connection %q", msg.client.id)
		cs.handleDisconnect(msg.client)
		return
	}

	if _, ok := cs.clients[msg.client.id]; !ok {
		// the connection went away before its message was processed
		return
	}

	switch {
	case msg.Login != nil:
		cs.handleLogin(msg)
	case msg.Send != nil:
		cs.handleSend(msg)
	case msg.TypingStart != nil:
		cs.handleTyping(msg, msg.TypingStart, true)
	case msg.TypingStop != nil:
		cs.handleTyping(msg, msg.TypingStop, false)
	default:
		msg.client.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (cs *ChatServer) handleLogin(msg *ClientMessage) {
	c := msg.client
	username, err := NormalizeUsername(msg.Login.Username)
	if err != nil {
		c.queueMessage(ErrFromError(msg.Id, err))
		return
	}

	// a connection logging in under a new name releases the old one
	if prev, ok := cs.presence.Username(c.id); ok && prev != username {
		cs.presence.SetOffline(c.id)
		cs.userOffline(prev)
	}

	wasOnline := cs.presence.IsOnline(username)
	cs.presence.SetOnline(c.id, username)
	if !wasOnline {
		cs.stats.Incr(metricOnlineUsers)
	}

	cs.log.Printf("%q logged in on connection %q", username, c.id)
	c.queueMessage(NoErrOK(msg.Id, nil))

	cs.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Presence: &PresenceChange{
				Username: username,
				IsOnline: true,
			},
		},
	})
}

func (cs *ChatServer) handleSend(msg *ClientMessage) {
	c := msg.client
	s := msg.Send

	from := s.From
	if strings.TrimSpace(from) == "" {
		from, _ = cs.presence.Username(c.id)
	}

	m, err := cs.sendMessage(from, s.To, s.Content, s.Type, s.FileRef)
	if err != nil {
		if !errors.Is(err, apperror.ErrValidation) && !errors.Is(err, apperror.ErrNotFound) {
			cs.log.Println("send message:", err)
		}
		c.queueMessage(ErrFromError(msg.Id, err))
		return
	}

	// echo the stored message so the sender sees the generated id and timestamp
	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: Now(),
		},
		Message: &m,
	})

	recipient := cs.clientFor(m.To)
	if recipient == nil || recipient == c {
		return
	}

	recipient.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Message: &m,
	})
	recipient.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			ChatUpdate: &ChatUpdate{
				Username:    m.From,
				LastMessage: &m,
			},
		},
	})
}

// sendMessage validates a send and appends it to the conversation.
func (cs *ChatServer) sendMessage(from, to, content string, msgType types.MessageType, fileRef string) (types.Message, error) {
	from, to = canonical(from), canonical(to)
	if from == "" {
		return types.Message{}, apperror.ValidationFailed("from", "sender is required")
	}
	if to == "" {
		return types.Message{}, apperror.ValidationFailed("to", "recipient is required")
	}

	if msgType == "" {
		msgType = types.MessageTypeText
	}

	switch msgType {
	case types.MessageTypeText:
	case types.MessageTypeImage:
		if fileRef == "" {
			return types.Message{}, apperror.ValidationFailed("file_ref", "image messages require a file reference")
		}
	default:
		return types.Message{}, apperror.ValidationFailed("type", fmt.Sprintf("unknown message type %q", msgType))
	}

	if strings.TrimSpace(content) == "" && fileRef == "" {
		return types.Message{}, apperror.ValidationFailed("content", "message must have content or a file reference")
	}

	for _, username := range []string{from, to} {
		if _, err := cs.directory.Get(username); err != nil {
			return types.Message{}, err
		}
	}

	m, err := cs.messages.Append(from, to, content, msgType, fileRef)
	if err != nil {
		return types.Message{}, fmt.Errorf("append message: %w", err)
	}

	cs.stats.Incr(metricMessages)
	return m, nil
}

func (cs *ChatServer) handleTyping(msg *ClientMessage, t *Typing, typing bool) {
	from := canonical(t.From)
	if from == "" {
		from, _ = cs.presence.Username(msg.client.id)
	}

	recipient := cs.clientFor(canonical(t.To))
	if from == "" || recipient == nil {
		return
	}

	notice := &TypingNotice{From: from}
	notification := &Notification{TypingHide: notice}
	if typing {
		notification = &Notification{TypingShow: notice}
	}

	recipient.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: notification,
	})
}

func (cs *ChatServer) handleDisconnect(c *Client) {
	if !cs.removeClient(c) {
		return
	}

	if username := cs.presence.SetOffline(c.id); username != "" {
		cs.log.Printf("%q went offline", username)
		cs.userOffline(username)
	}
}

// userOffline records that username has no live connection and tells
// every connection about it.
func (cs *ChatServer) userOffline(username string) {
	cs.stats.Decr(metricOnlineUsers)
	cs.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Presence: &PresenceChange{
				Username: username,
				IsOnline: false,
			},
		},
	})
}

func (cs *ChatServer) clientFor(username string) *Client {
	id, ok := cs.presence.ConnectionId(username)
	if !ok {
		return nil
	}

	return cs.clients[id]
}

// broadcast queues msg on every connection, logged in or not.
func (cs *ChatServer) broadcast(msg *ServerMessage) {
	for _, c := range cs.clients {
		c.queueMessage(msg)
	}
}
