package domain

import (
	"encoding/json"
	"time"

	"github.com/jdships/yodoo-rebuild/pkg/database"
)

// UserModel is the GORM model for users table.
type UserModel struct {
	ID                    string               `gorm:"type:varchar(64);primaryKey"`
	Email                 string               `gorm:"type:varchar(255);index"`
	DisplayName           string               `gorm:"type:varchar(255)"`
	ProfileImage          string               `gorm:"type:text"`
	Anonymous             bool                 `gorm:"not null;default:false"`
	Premium               bool                 `gorm:"not null;default:false"`
	MessageCount          int                  `gorm:"not null;default:0"`
	DailyMessageCount     int                  `gorm:"not null;default:0"`
	DailyReset            *time.Time
	DailyProMessageCount  int `gorm:"not null;default:0"`
	DailyProReset         *time.Time
	FavoriteModels        database.StringArray `gorm:"type:text"`
	SubscriptionType      string               `gorm:"type:varchar(20);not null;default:free"`
	SubscriptionStatus    string               `gorm:"type:varchar(20);not null;default:inactive"`
	SubscriptionStartedAt *time.Time
	SubscriptionEndsAt    *time.Time
	BillingCustomerID     *string `gorm:"type:varchar(255);uniqueIndex"`
	LastActiveAt          *time.Time
	CreatedAt             time.Time `gorm:"autoCreateTime"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	u := &User{
		ID:                    m.ID,
		Email:                 m.Email,
		DisplayName:           m.DisplayName,
		ProfileImage:          m.ProfileImage,
		Anonymous:             m.Anonymous,
		Premium:               m.Premium,
		MessageCount:          m.MessageCount,
		DailyMessageCount:     m.DailyMessageCount,
		DailyReset:            m.DailyReset,
		DailyProMessageCount:  m.DailyProMessageCount,
		DailyProReset:         m.DailyProReset,
		FavoriteModels:        []string(m.FavoriteModels),
		SubscriptionType:      PlanType(m.SubscriptionType),
		SubscriptionStatus:    SubscriptionStatus(m.SubscriptionStatus),
		SubscriptionStartedAt: m.SubscriptionStartedAt,
		SubscriptionEndsAt:    m.SubscriptionEndsAt,
		LastActiveAt:          m.LastActiveAt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
	if m.BillingCustomerID != nil {
		u.BillingCustomerID = *m.BillingCustomerID
	}
	if u.FavoriteModels == nil {
		u.FavoriteModels = []string{}
	}
	return u
}

// ChatModel is the GORM model for chats table.
type ChatModel struct {
	ID           string  `gorm:"type:varchar(36);primaryKey"`
	UserID       string  `gorm:"type:varchar(64);index;not null"`
	ProjectID    *string `gorm:"type:varchar(36);index"`
	Title        string  `gorm:"type:varchar(255)"`
	Model        string  `gorm:"type:varchar(255)"`
	SystemPrompt string  `gorm:"type:text"`
	Pinned       bool    `gorm:"not null;default:false"`
	PinnedAt     *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ChatModel.
func (ChatModel) TableName() string {
	return "chats"
}

// ToDomain converts ChatModel to domain Chat.
func (m *ChatModel) ToDomain() *Chat {
	return &Chat{
		ID:           m.ID,
		UserID:       m.UserID,
		ProjectID:    m.ProjectID,
		Title:        m.Title,
		Model:        m.Model,
		SystemPrompt: m.SystemPrompt,
		Pinned:       m.Pinned,
		PinnedAt:     m.PinnedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ChatToModel converts domain Chat to ChatModel.
func ChatToModel(c *Chat) *ChatModel {
	return &ChatModel{
		ID:           c.ID,
		UserID:       c.UserID,
		ProjectID:    c.ProjectID,
		Title:        c.Title,
		Model:        c.Model,
		SystemPrompt: c.SystemPrompt,
		Pinned:       c.Pinned,
		PinnedAt:     c.PinnedAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID             int64                              `gorm:"primaryKey;autoIncrement"`
	ChatID         string                             `gorm:"type:varchar(36);index:idx_messages_chat_created,priority:1;not null"`
	UserID         string                             `gorm:"type:varchar(64);index"`
	Role           string                             `gorm:"type:varchar(20);not null"`
	Content        string                             `gorm:"type:text"`
	Attachments    database.JSON[[]MessageAttachment] `gorm:"column:experimental_attachments"`
	Parts          database.JSON[json.RawMessage]     `gorm:"column:parts"`
	MessageGroupID *string                            `gorm:"type:varchar(36);index"`
	Model          *string                            `gorm:"type:varchar(255)"`
	CreatedAt      time.Time                          `gorm:"autoCreateTime;index:idx_messages_chat_created,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	parts := m.Parts.Val
	if string(parts) == "null" {
		parts = nil
	}
	return &Message{
		ID:             m.ID,
		ChatID:         m.ChatID,
		UserID:         m.UserID,
		Role:           Role(m.Role),
		Content:        m.Content,
		Attachments:    m.Attachments.Val,
		Parts:          parts,
		MessageGroupID: m.MessageGroupID,
		Model:          m.Model,
		CreatedAt:      m.CreatedAt,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:             msg.ID,
		ChatID:         msg.ChatID,
		UserID:         msg.UserID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		Attachments:    database.NewJSON(msg.Attachments),
		Parts:          database.NewJSON(msg.Parts),
		MessageGroupID: msg.MessageGroupID,
		Model:          msg.Model,
		CreatedAt:      msg.CreatedAt,
	}
}

// PreferencesModel is the GORM model for user_preferences table.
type PreferencesModel struct {
	UserID                   string               `gorm:"type:varchar(64);primaryKey"`
	PromptSuggestions        bool                 `gorm:"not null"`
	ShowToolInvocations      bool                 `gorm:"not null"`
	ShowConversationPreviews bool                 `gorm:"not null"`
	MultiModelEnabled        bool                 `gorm:"not null;default:false"`
	HiddenModels             database.StringArray `gorm:"type:text"`
	CreatedAt                time.Time            `gorm:"autoCreateTime"`
	UpdatedAt                time.Time            `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for PreferencesModel.
func (PreferencesModel) TableName() string {
	return "user_preferences"
}

// ToDomain converts PreferencesModel to domain UserPreferences.
func (m *PreferencesModel) ToDomain() UserPreferences {
	hidden := []string(m.HiddenModels)
	if hidden == nil {
		hidden = []string{}
	}
	return UserPreferences{
		PromptSuggestions:        m.PromptSuggestions,
		ShowToolInvocations:      m.ShowToolInvocations,
		ShowConversationPreviews: m.ShowConversationPreviews,
		MultiModelEnabled:        m.MultiModelEnabled,
		HiddenModels:             hidden,
	}
}

// PreferencesToModel converts domain UserPreferences to PreferencesModel.
func PreferencesToModel(userID string, p UserPreferences) *PreferencesModel {
	return &PreferencesModel{
		UserID:                   userID,
		PromptSuggestions:        p.PromptSuggestions,
		ShowToolInvocations:      p.ShowToolInvocations,
		ShowConversationPreviews: p.ShowConversationPreviews,
		MultiModelEnabled:        p.MultiModelEnabled,
		HiddenModels:             database.StringArray(p.HiddenModels),
	}
}

// ProjectModel is the GORM model for projects table.
type ProjectModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(64);index;not null"`
	Name      string    `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ProjectModel.
func (ProjectModel) TableName() string {
	return "projects"
}

// ToDomain converts ProjectModel to domain Project.
func (m *ProjectModel) ToDomain() *Project {
	return &Project{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// UserKeyModel is the GORM model for user_keys table.
type UserKeyModel struct {
	UserID       string    `gorm:"type:varchar(64);primaryKey"`
	Provider     string    `gorm:"type:varchar(32);primaryKey"`
	EncryptedKey string    `gorm:"type:text;not null"`
	Nonce        string    `gorm:"column:iv;type:varchar(64);not null"`
	Masked       string    `gorm:"type:varchar(32)"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for UserKeyModel.
func (UserKeyModel) TableName() string {
	return "user_keys"
}

// ToDomain converts UserKeyModel to domain UserKey.
func (m *UserKeyModel) ToDomain() *UserKey {
	return &UserKey{
		UserID:       m.UserID,
		Provider:     Provider(m.Provider),
		EncryptedKey: m.EncryptedKey,
		Nonce:        m.Nonce,
		Masked:       m.Masked,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// AttachmentModel is the GORM model for attachments table.
type AttachmentModel struct {
	ID          string    `gorm:"type:varchar(26);primaryKey"`
	UserID      string    `gorm:"type:varchar(64);index:idx_attachments_user_created,priority:1;not null"`
	ChatID      string    `gorm:"type:varchar(36);index;not null"`
	Name        string    `gorm:"type:varchar(255)"`
	ContentType string    `gorm:"type:varchar(127)"`
	Size        int64     `gorm:"not null"`
	StorageKey  string    `gorm:"type:varchar(512);not null"`
	URL         string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_attachments_user_created,priority:2"`
}

// TableName specifies the table name for AttachmentModel.
func (AttachmentModel) TableName() string {
	return "attachments"
}

// ToDomain converts AttachmentModel to domain Attachment.
func (m *AttachmentModel) ToDomain() *Attachment {
	return &Attachment{
		ID:          m.ID,
		UserID:      m.UserID,
		ChatID:      m.ChatID,
		Name:        m.Name,
		ContentType: m.ContentType,
		Size:        m.Size,
		StorageKey:  m.StorageKey,
		URL:         m.URL,
		CreatedAt:   m.CreatedAt,
	}
}

// AllModels lists the models for auto-migration.
func AllModels() []interface{} {
	return []interface{}{
		&UserModel{},
		&ChatModel{},
		&MessageModel{},
		&PreferencesModel{},
		&ProjectModel{},
		&UserKeyModel{},
		&AttachmentModel{},
	}
}
