package amqp

import (
	"encoding/json"
	"time"
)

// BackupRequest asks the worker to back up one user's full dataset. The
// message carries only the user id; the worker reads the data from storage
// at processing time.
type BackupRequest struct {
	UserID      string    `json:"uid"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewBackupRequest creates a backup request stamped now
func NewBackupRequest(userID string) *BackupRequest {
	return &BackupRequest{
		UserID:      userID,
		RequestedAt: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BackupRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BackupRequestFromJSON creates a message from JSON bytes
func BackupRequestFromJSON(data []byte) (*BackupRequest, error) {
	var msg BackupRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
