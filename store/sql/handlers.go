package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func claimHandlers() repository.ModelHandlers[*claimRecord] {
	return repository.ModelHandlers[*claimRecord]{
		NewRecord: func() *claimRecord {
			return &claimRecord{}
		},
		GetID: func(record *claimRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *claimRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "claim_key"
		},
		GetIdentifierValue: func(record *claimRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ClaimKey)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
