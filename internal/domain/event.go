package domain

import (
	"encoding/json"
	"fmt"
)

// ObjectPage is the only envelope object the gateway accepts.
const ObjectPage = "page"

// FieldFeed is the change field carrying page feed updates.
const FieldFeed = "feed"

// Feed items that trigger a private-reply handover.
const (
	FeedItemPost    = "post"
	FeedItemComment = "comment"
)

// WebhookEnvelope is the batched notification delivered to the webhook.
type WebhookEnvelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one page-scoped batch inside an envelope. It carries either
// feed changes or messaging events.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Changes   []Change         `json:"changes,omitempty"`
	Messaging []MessagingEvent `json:"messaging,omitempty"`
}

// HasChanges reports whether the entry is a feed-change entry.
func (e Entry) HasChanges() bool { return len(e.Changes) > 0 }

type Change struct {
	Field string     `json:"field"`
	Value FeedChange `json:"value"`
}

// FeedChange is the value of a feed change notification.
type FeedChange struct {
	Item      string    `json:"item"`
	Verb      string    `json:"verb,omitempty"`
	PostID    string    `json:"post_id,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	From      *Resource `json:"from,omitempty"`
}

// Resource is an id/name reference used by sender, recipient and feed authors.
type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// EventKind is the closed set of messaging event variants.
type EventKind int

const (
	KindMessage EventKind = iota
	KindRead
	KindDelivery
	KindEcho
)

func (k EventKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindRead:
		return "read"
	case KindDelivery:
		return "delivery"
	case KindEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// MessagingEvent is a single conversational event. Kind is decided once
// when the event is decoded.
type MessagingEvent struct {
	Kind      EventKind
	Sender    Resource
	Recipient Resource
	Timestamp int64

	Message  *Message
	Postback *Postback
	Referral *Referral
	Read     *Watermark
	Delivery *Watermark
}

type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	QuickReply  *QuickReply  `json:"quick_reply,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type QuickReply struct {
	Payload string `json:"payload"`
}

type Attachment struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Postback struct {
	MID     string `json:"mid,omitempty"`
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload"`
}

type Referral struct {
	Ref    string `json:"ref,omitempty"`
	Source string `json:"source,omitempty"`
	Type   string `json:"type,omitempty"`
}

type Watermark struct {
	Watermark int64    `json:"watermark"`
	MIDs      []string `json:"mids,omitempty"`
}

// MID returns the platform message id, or "" when the event has none.
func (e *MessagingEvent) MID() string {
	switch {
	case e.Message != nil:
		return e.Message.MID
	case e.Postback != nil:
		return e.Postback.MID
	default:
		return ""
	}
}

// PageID returns the page the event was addressed to (or sent from, for echoes).
func (e *MessagingEvent) PageID() string {
	if e.Kind == KindEcho {
		return e.Sender.ID
	}
	return e.Recipient.ID
}

type messagingEventJSON struct {
	Sender    Resource   `json:"sender"`
	Recipient Resource   `json:"recipient"`
	Timestamp int64      `json:"timestamp"`
	Message   *Message   `json:"message,omitempty"`
	Postback  *Postback  `json:"postback,omitempty"`
	Referral  *Referral  `json:"referral,omitempty"`
	Read      *Watermark `json:"read,omitempty"`
	Delivery  *Watermark `json:"delivery,omitempty"`
}

func (e *MessagingEvent) UnmarshalJSON(data []byte) error {
	var raw messagingEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode messaging event: %w", err)
	}

	*e = MessagingEvent{
		Sender:    raw.Sender,
		Recipient: raw.Recipient,
		Timestamp: raw.Timestamp,
		Message:   raw.Message,
		Postback:  raw.Postback,
		Referral:  raw.Referral,
		Read:      raw.Read,
		Delivery:  raw.Delivery,
	}

	switch {
	case raw.Read != nil:
		e.Kind = KindRead
	case raw.Delivery != nil:
		e.Kind = KindDelivery
	case raw.Message != nil && raw.Message.IsEcho:
		e.Kind = KindEcho
	default:
		e.Kind = KindMessage
	}
	return nil
}

func (e MessagingEvent) MarshalJSON() ([]byte, error) {
	out, err := json.Marshal(messagingEventJSON{
		Sender:    e.Sender,
		Recipient: e.Recipient,
		Timestamp: e.Timestamp,
		Message:   e.Message,
		Postback:  e.Postback,
		Referral:  e.Referral,
		Read:      e.Read,
		Delivery:  e.Delivery,
	})
	if err != nil {
		return nil, fmt.Errorf("encode messaging event: %w", err)
	}
	return out, nil
}
