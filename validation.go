package smallbin

import (
	"fmt"
	"strings"
)

// Input validation helpers. Blank required arguments are ArgumentErrors;
// values that are present but unusable are ValidationErrors.

// ValidatePassword checks that a password is acceptable for a database.
// An empty password is an ArgumentError; a non-empty password shorter
// than MinPasswordLength is a ValidationError.
func ValidatePassword(password string) error {
	if password == "" {
		return &ArgumentError{
			Name:    "password",
			Message: "password cannot be empty",
		}
	}
	if len(password) < MinPasswordLength {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("password too weak: need at least %d characters, got %d", MinPasswordLength, len(password)),
		}
	}
	return nil
}

// ValidatePath checks that a database file path is usable
func ValidatePath(path string) error {
	if path == "" {
		return &ArgumentError{
			Name:    "path",
			Message: "database path cannot be empty",
		}
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, "\\") {
		return &ValidationError{
			Field:   "path",
			Value:   path,
			Message: "database path names a directory, not a file",
		}
	}
	return nil
}

// validateEntryName checks the display name for a new entry
func validateEntryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ArgumentError{
			Name:    "name",
			Message: "entry name cannot be empty",
		}
	}
	return nil
}

// validateSourceData checks the payload for a new entry or version
func validateSourceData(data []byte) error {
	if len(data) == 0 {
		return &ValidationError{
			Field:   "data",
			Message: "source data is empty",
		}
	}
	return nil
}

// validateID checks an entry id argument
func validateID(id string) error {
	if id == "" {
		return &ArgumentError{
			Name:    "id",
			Message: "entry id cannot be empty",
		}
	}
	return nil
}
