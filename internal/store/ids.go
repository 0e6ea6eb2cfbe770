package store

import "github.com/google/uuid"

// NewRecordID generates a time-ordered UUIDv7 record id.
func NewRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails
		return uuid.New().String()
	}
	return id.String()
}
