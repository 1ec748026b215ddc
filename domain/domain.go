package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a conversation or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotMember is returned when a user is not a member of a conversation.
	ErrNotMember = errors.New("not a conversation member")
)

// User is the subset of the account record needed for conversation previews.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Firstname string    `json:"firstname,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is a two-party direct-message thread.
type Conversation struct {
	ID        string    `json:"id"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is an append-only record owned by the directory; the relay never
// mutates one.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationPreview pairs a conversation with the other member and the
// most recent message, for listing.
type ConversationPreview struct {
	ConversationID string   `json:"conversationId"`
	User           *User    `json:"user"`
	LastMessage    *Message `json:"lastMessage"`
}

// Connection is one open client connection as seen by the registry and the
// frame handler.
type Connection interface {
	ID() string
	UserID() string
	Send(data []byte) error
	Close() error
}

// Session extends Connection with the hooks the liveness monitor needs.
type Session interface {
	Connection
	Alive() bool
	ClearAlive()
	Ping() error
}

// Broadcaster tracks which connections subscribe to which conversation and
// fans payloads out to them.
type Broadcaster interface {
	Join(conn Connection, conversationID string)
	Leave(conn Connection)
	Broadcast(conversationID string, data []byte)
	Stats() (rooms, clients int)
}

// MessageHandler processes one inbound frame from a connection.
type MessageHandler interface {
	Handle(conn Connection, data []byte)
}

// Dispatcher is invoked by the write path after a message is durably
// persisted.
type Dispatcher interface {
	Dispatch(conversationID string, message []byte)
}

// Directory owns conversations, messages and membership truth.
type Directory interface {
	FindOrCreateConversation(ctx context.Context, userID, otherID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]ConversationPreview, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
	AppendMessage(ctx context.Context, conversationID, senderID, content string) (*Message, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*ConversationPreview, error)
}
