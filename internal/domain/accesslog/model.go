package accesslog

import (
	"time"

	"github.com/google/uuid"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

// Outcome classifies how an access attempt was resolved.
type Outcome string

const (
	OutcomeGranted     Outcome = "granted"
	OutcomeDenied      Outcome = "denied"
	OutcomeScopeDenied Outcome = "scope_denied"
)

// Entry is one append-only audit record. Exactly one entry is written per
// resolved access attempt, summarizing the record types involved in sorted
// order; entries are never updated or deleted and survive revocation or
// expiry of the token they reference.
type Entry struct {
	ID          uuid.UUID            `db:"id" json:"id"`
	TokenID     uuid.UUID            `db:"token_id" json:"token_id"`
	AccessorID  *string              `db:"accessor_id" json:"accessor_id,omitempty"`
	RecordTypes []records.RecordType `db:"record_types" json:"record_types"`
	Outcome     Outcome              `db:"outcome" json:"outcome"`
	OriginIP    string               `db:"origin_ip" json:"origin_ip"`
	UserAgent   string               `db:"user_agent" json:"user_agent"`
	AccessedAt  time.Time            `db:"accessed_at" json:"accessed_at"`
}
