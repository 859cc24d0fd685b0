package domain

import "time"

// Project groups chats.
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectRequest is the body of project create and rename.
type ProjectRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}
