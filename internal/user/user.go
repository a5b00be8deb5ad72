// Package user defines the user model used throughout the application,
// particularly for authentication and shopping list membership.
package user

// User represents a system user.
// It contains the unique identifier used to associate shopping lists and sessions.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string

	// IsAdmin marks an administrator. Administrators bypass the
	// shopping list membership checks.
	IsAdmin bool
}
