package domain

// ChatMessage is a client supplied turn for POST /api/chat.
type ChatMessage struct {
	Role        Role                `json:"role"`
	Content     string              `json:"content"`
	Attachments []MessageAttachment `json:"experimental_attachments,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages        []ChatMessage `json:"messages"`
	ChatID          string        `json:"chatId"`
	UserID          string        `json:"userId"`
	Model           string        `json:"model"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	SystemPrompt    string        `json:"systemPrompt"`
	EnableSearch    bool          `json:"enableSearch"`
	MessageGroupID  *string       `json:"message_group_id"`
	Stream          bool          `json:"stream"`
}

// MultiChatRequest is the body of POST /api/multi-chat.
type MultiChatRequest struct {
	ChatID          string              `json:"chatId"`
	UserID          string              `json:"userId"`
	Prompt          string              `json:"prompt"`
	Models          []string            `json:"models"`
	SystemPrompt    string              `json:"systemPrompt"`
	IsAuthenticated bool                `json:"isAuthenticated"`
	ProjectID       *string             `json:"projectId"`
	Attachments     []MessageAttachment `json:"experimental_attachments"`
}

// ModelResult is the outcome of one model in a multi-model request.
type ModelResult struct {
	Model   string   `json:"model"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
}

// MultiChatResponse is the response of POST /api/multi-chat.
type MultiChatResponse struct {
	ChatID         string        `json:"chatId"`
	MessageGroupID string        `json:"message_group_id"`
	UserMessage    *Message      `json:"userMessage"`
	Results        []ModelResult `json:"results"`
}

// ModelInfo describes a selectable model.
type ModelInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
	Upstream string   `json:"-"`
	Pro      bool     `json:"pro"`
}
