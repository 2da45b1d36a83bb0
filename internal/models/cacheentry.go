package models

import "time"

// CacheEntry is one cached remote response. Entries past ExpiresAt are
// invisible to readers even before the sweeper removes them.
type CacheEntry struct {
	Key       string
	Payload   []byte
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at instant now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
