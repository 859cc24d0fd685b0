package domain

import "time"

// Attachment is an uploaded file stored outside the database.
type Attachment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ChatID      string    `json:"chat_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"-"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToMessageAttachment converts to the form stored on messages.
func (a *Attachment) ToMessageAttachment() MessageAttachment {
	return MessageAttachment{Name: a.Name, ContentType: a.ContentType, URL: a.URL}
}
