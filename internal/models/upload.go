package models

import "time"

// UploadState is the durable staging state of a binary upload.
//
// StateUploading is transient: it exists only while a worker holds the
// item mid-flight and is never written to the store, so a crash can never
// strand an entry there.
type UploadState string

const (
	StatePending   UploadState = "pending"
	StateEncrypted UploadState = "encrypted"
	StateUploading UploadState = "uploading"
	StateCompleted UploadState = "completed"
	StateFailed    UploadState = "failed"
)

// FileMetadata describes the original file behind an upload entry.
type FileMetadata struct {
	Name      string
	Type      string
	Size      int64
	Timestamp time.Time
}

// UploadEntry is one staged binary payload. The entry owns its Blob
// exclusively: after the encrypt stage the Blob holds ciphertext and the
// plaintext is gone.
type UploadEntry struct {
	ID            string
	Blob          []byte
	Metadata      FileMetadata
	State         UploadState
	TargetID      string
	RetryCount    int
	Checksum      string
	Nonce         []byte
	Error         string
	CreatedAt     time.Time
	LastAttemptAt time.Time
}
