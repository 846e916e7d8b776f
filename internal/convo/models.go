package convo

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem marks synthetic messages such as compression
	// summaries.
	RoleSystem Role = "system"
)

// Modality records the original form of the content. Stored content is
// always text; voice and documents are transcribed or extracted before
// they reach the store.
type Modality string

const (
	ModalityText     Modality = "text"
	ModalityVoice    Modality = "voice"
	ModalityImage    Modality = "image"
	ModalityDocument Modality = "document"
)

// Message is one immutable conversation entry.
type Message struct {
	ID             string
	ConversationID string
	AuthorID       string // empty for synthetic messages
	Role           Role
	Content        string
	Modality       Modality
	CreatedAt      time.Time
}
