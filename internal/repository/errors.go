package repository

import "strings"

// handleError converts database-specific errors to repository errors.
func handleError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()

	// PostgreSQL / SQLite unique constraint violation
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") {
		if strings.Contains(errStr, "billing_customer_id") {
			return ErrCustomerTaken
		}
		return ErrDuplicate
	}

	// MySQL unique constraint violation
	if strings.Contains(errStr, "Duplicate entry") {
		if strings.Contains(errStr, "billing_customer_id") {
			return ErrCustomerTaken
		}
		return ErrDuplicate
	}

	return err
}
