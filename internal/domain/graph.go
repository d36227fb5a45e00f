package domain

import "context"

// Recipient addresses a conversation. Exactly one field is set.
type Recipient struct {
	ID        string `json:"id,omitempty"`
	PostID    string `json:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

// RecipientKind selects which feed reference a private reply is addressed to.
type RecipientKind string

const (
	RecipientPostID    RecipientKind = "post_id"
	RecipientCommentID RecipientKind = "comment_id"
)

// RecipientFor builds a recipient for a feed item reference.
func RecipientFor(kind RecipientKind, id string) Recipient {
	switch kind {
	case RecipientPostID:
		return Recipient{PostID: id}
	case RecipientCommentID:
		return Recipient{CommentID: id}
	default:
		return Recipient{ID: id}
	}
}

// OutgoingMessage is the body of a Send API request.
type OutgoingMessage struct {
	Recipient     Recipient        `json:"recipient"`
	MessagingType string           `json:"messaging_type,omitempty"`
	Message       *OutgoingContent `json:"message,omitempty"`
	SenderAction  string           `json:"sender_action,omitempty"`
	PersonaID     string           `json:"persona_id,omitempty"`
}

type OutgoingContent struct {
	Text         string               `json:"text,omitempty"`
	QuickReplies []OutgoingQuickReply `json:"quick_replies,omitempty"`
}

type OutgoingQuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// MessageSender delivers messages through the platform Send API.
type MessageSender interface {
	SendMessage(ctx context.Context, msg OutgoingMessage, pageID string) error
}

// ThreadController passes conversation control to another application.
type ThreadController interface {
	PassThreadControl(ctx context.Context, recipient Recipient, personaID, pageID string) error
}
