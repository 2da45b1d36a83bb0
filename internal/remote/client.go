// Package remote implements the HTTP client for the backend API the sync
// engine reconciles against.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface): Ping,
//     the per-entity mutation calls (Create/Update/Delete) and the
//     multipart attachment upload.
//  2. A concrete HTTP implementation (see HTTPClient) that attaches the
//     bearer token, guards dispatch with a circuit breaker and maps
//     HTTP-level outcomes to the engine's sentinel error classes.
//
// # Error Handling
//
// Outcomes are exposed through the sentinels in the common package so
// queue processors can classify them with errors.Is: common.ErrUnavailable
// (transport failure, timeout, 5xx, open breaker), common.ErrRejected
// (4xx), common.ErrUnauthorized (401/403).
package remote

import "context"

// Client is the remote API contract consumed by the queue processors.
type Client interface {
	// Ping probes server reachability.
	Ping(ctx context.Context) error

	// Create POSTs a new record of the given entity kind.
	Create(ctx context.Context, entity string, payload []byte) error

	// Update PUTs the record identified by id.
	Update(ctx context.Context, entity, id string, payload []byte) error

	// Delete removes the record identified by id.
	Delete(ctx context.Context, entity, id string) error

	// Upload sends one staged binary payload to the multipart endpoint.
	Upload(ctx context.Context, req *UploadRequest) error
}

// UploadRequest carries one attachment to the multipart upload endpoint.
type UploadRequest struct {
	ID          string
	Name        string
	ContentType string
	TargetID    string
	Checksum    string
	Body        []byte
}
