package domain

import (
	"encoding/json"
	"time"
)

// DefaultChatTitle is used when a chat is created without a title.
const DefaultChatTitle = "New Chat"

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Chat is a conversation owned by a user.
type Chat struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	ProjectID    *string    `json:"project_id"`
	Title        string     `json:"title"`
	Model        string     `json:"model"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	Pinned       bool       `json:"pinned"`
	PinnedAt     *time.Time `json:"pinned_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// MessageAttachment is a file reference carried by a message.
type MessageAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	URL         string `json:"url"`
}

// Message is one turn of a chat. Assistant messages produced by a
// multi-model request carry the model and the group id of the user turn
// they answer.
type Message struct {
	ID             int64               `json:"id"`
	ChatID         string              `json:"chat_id"`
	UserID         string              `json:"user_id,omitempty"`
	Role           Role                `json:"role"`
	Content        string              `json:"content"`
	Attachments    []MessageAttachment `json:"experimental_attachments,omitempty"`
	Parts          json.RawMessage     `json:"parts,omitempty"`
	MessageGroupID *string             `json:"message_group_id"`
	Model          *string             `json:"model"`
	CreatedAt      time.Time           `json:"created_at"`
}

// GroupID returns the message group id or "".
func (m *Message) GroupID() string {
	if m.MessageGroupID == nil {
		return ""
	}
	return *m.MessageGroupID
}

// ModelID returns the model or "".
func (m *Message) ModelID() string {
	if m.Model == nil {
		return ""
	}
	return *m.Model
}

// CreateChatRequest is the body of POST /api/create-chat.
type CreateChatRequest struct {
	UserID          string  `json:"userId"`
	Title           string  `json:"title"`
	Model           string  `json:"model"`
	IsAuthenticated bool    `json:"isAuthenticated"`
	ProjectID       *string `json:"projectId"`
	SystemPrompt    string  `json:"systemPrompt"`
}

// UpdateChatRequest is a partial chat update.
type UpdateChatRequest struct {
	Title        *string `json:"title"`
	Model        *string `json:"model"`
	SystemPrompt *string `json:"system_prompt"`
	Pinned       *bool   `json:"pinned"`
	ProjectID    *string `json:"project_id"`
}

// NewMessage is one message of a bulk insert.
type NewMessage struct {
	Role           Role                `json:"role"`
	Content        string              `json:"content"`
	Attachments    []MessageAttachment `json:"experimental_attachments"`
	Parts          json.RawMessage     `json:"parts"`
	MessageGroupID *string             `json:"message_group_id"`
	Model          *string             `json:"model"`
}
