package service

// ValidateUserIdentity checks a body userId against the session subject.
// isAuthenticated is the client's own claim and must be true.
func ValidateUserIdentity(sessionUserID, bodyUserID string, isAuthenticated bool) error {
	if !isAuthenticated || sessionUserID == "" {
		return ErrNotAuthenticated
	}
	if bodyUserID != sessionUserID {
		return ErrUserMismatch
	}
	return nil
}
