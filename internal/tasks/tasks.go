package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TypePasswordResetEmail = "auth:password_reset_email"
	TypeCleanupTempUploads = "uploads:cleanup_temp"
)

// PasswordResetPayload carries everything the mailer needs. The token is only
// ever stored hashed, so the link travels in the payload.
type PasswordResetPayload struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	ResetURL string `json:"reset_url"`
}

// CleanupPayload optionally narrows a cleanup run to a prefix.
type CleanupPayload struct {
	Prefix string `json:"prefix,omitempty"`
}

// NewPasswordResetEmailTask creates a task delivering a password reset link
func NewPasswordResetEmailTask(userID, email, resetURL string) (*asynq.Task, error) {
	payload, err := json.Marshal(PasswordResetPayload{
		UserID:   userID,
		Email:    email,
		ResetURL: resetURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypePasswordResetEmail, payload, asynq.MaxRetry(5)), nil
}

// NewCleanupTempUploadsTask creates a task removing stale temporary uploads
func NewCleanupTempUploadsTask(prefix string) (*asynq.Task, error) {
	payload, err := json.Marshal(CleanupPayload{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeCleanupTempUploads, payload, asynq.MaxRetry(1)), nil
}

// ParsePasswordResetPayload parses a password reset task payload
func ParsePasswordResetPayload(task *asynq.Task) (PasswordResetPayload, error) {
	var payload PasswordResetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}

// ParseCleanupPayload parses a cleanup task payload. An empty payload is valid.
func ParseCleanupPayload(task *asynq.Task) (CleanupPayload, error) {
	var payload CleanupPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}
