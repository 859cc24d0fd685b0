package service

import "errors"

var (
	ErrMissingUserID     = errors.New("Missing userId")
	ErrNotAuthenticated  = errors.New("authentication required")
	ErrUserMismatch      = errors.New("User ID does not match authenticated user")
	ErrUserNotFound      = errors.New("user not found")
	ErrChatNotFound      = errors.New("chat not found")
	ErrProjectNotFound   = errors.New("project not found")
	ErrKeyNotFound       = errors.New("api key not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownModel      = errors.New("unknown model")
	ErrTooManyModels     = errors.New("too many models")
	ErrInvalidPlan       = errors.New("Invalid plan type")
	ErrPlanNotConfigured = errors.New("plan is not configured")
	ErrUnknownProvider   = errors.New("unknown billing provider")
	ErrEncryptionOff     = errors.New("encryption key is not configured")
	ErrFileTooLarge      = errors.New("file too large")
	ErrFileType          = errors.New("file type not allowed")
)
