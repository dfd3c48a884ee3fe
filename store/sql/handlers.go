package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func orderHandlers() repository.ModelHandlers[*paymentOrderRecord] {
	return repository.ModelHandlers[*paymentOrderRecord]{
		NewRecord: func() *paymentOrderRecord {
			return &paymentOrderRecord{}
		},
		GetID: func(record *paymentOrderRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *paymentOrderRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *paymentOrderRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func retryTaskHandlers() repository.ModelHandlers[*paymentRetryTaskRecord] {
	return repository.ModelHandlers[*paymentRetryTaskRecord]{
		NewRecord: func() *paymentRetryTaskRecord {
			return &paymentRetryTaskRecord{}
		},
		GetID: func(record *paymentRetryTaskRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *paymentRetryTaskRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *paymentRetryTaskRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
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
