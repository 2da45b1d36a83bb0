// Package models defines the persisted entity kinds of the sync engine:
// queued mutations, staged uploads and cached responses.
package models

import (
	"encoding/json"
	"time"
)

// OperationType classifies a queued mutation.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// Valid reports whether t is one of the known operation types.
func (t OperationType) Valid() bool {
	switch t {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// OperationStatus is the durable state of a queued mutation.
//
// StatusSynced and StatusError are terminal: the processor never moves an
// item out of them. Only an explicit manual reset returns an errored item
// to StatusPending.
type OperationStatus string

const (
	StatusPending OperationStatus = "pending"
	StatusSynced  OperationStatus = "synced"
	StatusError   OperationStatus = "error"
)

// SyncOperation is one queued create/update/delete mutation awaiting
// synchronization with the remote API.
//
// Attempts only grows, and only on failure. LastAttemptAt is zero until the
// first failure.
type SyncOperation struct {
	ID            string
	Type          OperationType
	Entity        string
	Payload       []byte
	Status        OperationStatus
	Attempts      int
	Error         string
	CreatedAt     time.Time
	LastAttemptAt time.Time
}

// payloadEnvelope is the fragment of an operation payload the engine itself
// inspects. Everything else is opaque to the queue and owned by the caller.
type payloadEnvelope struct {
	ID string `json:"id"`
}

// TargetIDFromPayload extracts the target record id from an operation
// payload. Update and delete operations require it; create operations may
// omit it.
func TargetIDFromPayload(payload []byte) string {
	var env payloadEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.ID
}
