package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type claimRecord struct {
	bun.BaseModel `bun:"table:slack_delivery_claims,alias:sdc"`

	ID        string     `bun:"id,pk"`
	ClaimKey  string     `bun:"claim_key,notnull"`
	ClaimID   string     `bun:"claim_id,notnull"`
	Status    string     `bun:"status,notnull"`
	Attempts  int        `bun:"attempts,notnull"`
	LeaseMS   int64      `bun:"lease_ms,notnull"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero"`
	RetryAt   *time.Time `bun:"retry_at,nullzero"`
	LastError string     `bun:"last_error"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
