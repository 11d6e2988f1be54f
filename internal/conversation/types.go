// Package conversation persists conversations and their messages. Each
// conversation is keyed by the platform it originated from plus the remote
// party's identifier on that platform.
package conversation

import (
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// Status is the conversation lifecycle state.
type Status string

const (
	StatusNew    Status = "new"
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Direction tells whether a message came from the customer or an operator.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// ContentType classifies message content.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentFile  ContentType = "file"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// CanTransition reports whether a message status change is legal. Delivery
// progress is monotonic: once read, a message never reverts; failed messages
// may only re-enter sending for a manual resend. A channel that confirms
// receipt synchronously (web chat) may jump from sending straight to
// delivered.
func CanTransition(from, to MessageStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case MessageSending:
		return to == MessageSent || to == MessageDelivered || to == MessageFailed
	case MessageSent:
		return to == MessageDelivered || to == MessageRead
	case MessageDelivered:
		return to == MessageRead
	case MessageFailed:
		return to == MessageSending
	default:
		return false
	}
}

// Conversation is one thread with a remote party on a single channel.
type Conversation struct {
	ID            string         `json:"id"`
	Source        channel.Source `json:"source"`
	ExternalID    string         `json:"external_id"`
	ClientID      string         `json:"client_id,omitempty"`
	Status        Status         `json:"status"`
	AssignedTo    string         `json:"assigned_to,omitempty"`
	LastMessageAt time.Time      `json:"last_message_at"`
	UnreadCount   int            `json:"unread_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Message is a single message within a conversation. Content is immutable
// after insert; only Status changes afterwards.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Direction      Direction      `json:"direction"`
	Content        string         `json:"content"`
	ContentType    ContentType    `json:"content_type"`
	Status         MessageStatus  `json:"status"`
	SourceData     map[string]any `json:"source_data,omitempty"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Attachment is a stored file reference attached to a message.
type Attachment struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	FileName  string `json:"file_name,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Position  int    `json:"position"`
}
