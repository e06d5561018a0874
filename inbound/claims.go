package inbound

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
)

const DefaultClaimTTL = 10 * time.Minute

// ClaimKeyExtractor returns the dedupe key of a delivery, or "" when the
// delivery carries no stable identity.
type ClaimKeyExtractor func(event core.InboundEvent) string

// DefaultClaimKey keys events by event_id and commands by trigger_id. Slack
// reuses both across redeliveries.
func DefaultClaimKey(event core.InboundEvent) string {
	switch event.Kind {
	case core.EventKindMessage:
		if id := strings.TrimSpace(event.EventID()); id != "" {
			return "event:" + id
		}
	case core.EventKindCommand:
		if id := strings.TrimSpace(event.String("trigger_id")); id != "" {
			return "command:" + id
		}
	}
	return ""
}

type claimStatus string

const (
	claimStatusProcessing claimStatus = "processing"
	claimStatusRetryReady claimStatus = "retry_ready"
	claimStatusComplete   claimStatus = "complete"
)

type claimEntry struct {
	status    claimStatus
	claimID   string
	attempts  int
	ttl       time.Duration
	expiresAt time.Time
	retryAt   time.Time
}

// MemoryClaimStore is a process-local dedupe ledger. Completed keys stay
// claimed for their TTL; failed keys become claimable again at retryAt.
type MemoryClaimStore struct {
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]claimEntry
	owners  map[string]string
	nextID  int
}

func NewMemoryClaimStore() *MemoryClaimStore {
	return &MemoryClaimStore{
		entries: map[string]claimEntry{},
		owners:  map[string]string{},
	}
}

func (s *MemoryClaimStore) Claim(_ context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil {
		return "", false, inboundInternal("inbound: claim store is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: claim key is required", nil)
	}
	if lease <= 0 {
		lease = DefaultClaimTTL
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(now)

	entry, exists := s.entries[key]
	if exists && entry.blocks(now) {
		return "", false, nil
	}
	if entry.claimID != "" {
		delete(s.owners, entry.claimID)
	}

	s.nextID++
	claimID := fmt.Sprintf("claim_%d", s.nextID)
	s.entries[key] = claimEntry{
		status:    claimStatusProcessing,
		claimID:   claimID,
		attempts:  entry.attempts + 1,
		ttl:       lease,
		expiresAt: now.Add(lease),
	}
	s.owners[claimID] = key
	return claimID, true, nil
}

func (s *MemoryClaimStore) Complete(_ context.Context, claimID string) error {
	return s.settle(claimID, func(entry *claimEntry, now time.Time) {
		entry.status = claimStatusComplete
		entry.expiresAt = now.Add(entry.ttl)
		entry.retryAt = time.Time{}
	})
}

func (s *MemoryClaimStore) Fail(_ context.Context, claimID string, _ error, retryAt time.Time) error {
	return s.settle(claimID, func(entry *claimEntry, now time.Time) {
		if retryAt.IsZero() {
			retryAt = now
		}
		entry.status = claimStatusRetryReady
		entry.retryAt = retryAt.UTC()
		entry.expiresAt = time.Time{}
	})
}

// Attempts reports how many times key has been claimed.
func (s *MemoryClaimStore) Attempts(key string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[strings.TrimSpace(key)].attempts
}

func (s *MemoryClaimStore) settle(claimID string, apply func(entry *claimEntry, now time.Time)) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.owners[claimID]
	if !ok {
		return nil
	}
	delete(s.owners, claimID)
	entry, exists := s.entries[key]
	if !exists || entry.claimID != claimID || entry.status != claimStatusProcessing {
		return nil
	}
	if entry.ttl <= 0 {
		entry.ttl = DefaultClaimTTL
	}
	apply(&entry, s.now())
	s.entries[key] = entry
	return nil
}

func (e claimEntry) blocks(now time.Time) bool {
	switch e.status {
	case claimStatusComplete, claimStatusProcessing:
		return now.Before(e.expiresAt)
	case claimStatusRetryReady:
		return !e.retryAt.IsZero() && now.Before(e.retryAt)
	default:
		return false
	}
}

func (s *MemoryClaimStore) evictLocked(now time.Time) {
	for key, entry := range s.entries {
		if entry.status == claimStatusComplete && !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryClaimStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.ClaimStore = (*MemoryClaimStore)(nil)
