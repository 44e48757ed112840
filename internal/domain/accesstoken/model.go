package accesstoken

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

// GranteeType categorizes the third party a token is issued to.
type GranteeType string

const (
	GranteeSpecialist GranteeType = "specialist"
	GranteeInsurer    GranteeType = "insurer"
	GranteeCaregiver  GranteeType = "caregiver"
)

// Valid reports whether gt is a recognized grantee category.
func (gt GranteeType) Valid() bool {
	switch gt {
	case GranteeSpecialist, GranteeInsurer, GranteeCaregiver:
		return true
	}
	return false
}

// AccessToken is a capability credential granting scoped, time-boxed access
// to one client's health records. The raw secret is never stored; only its
// SHA-256 hash is persisted. Tokens are never physically deleted.
type AccessToken struct {
	ID                 uuid.UUID            `db:"id" json:"id"`
	SecretHash         string               `db:"secret_hash" json:"-"` // never serialize
	SecretPrefix       string               `db:"secret_prefix" json:"secret_prefix"`
	OwnerID            uuid.UUID            `db:"owner_id" json:"owner_id"`
	GranteeID          string               `db:"grantee_id" json:"grantee_id"`
	GranteeType        GranteeType          `db:"grantee_type" json:"grantee_type"`
	AllowedRecordTypes []records.RecordType `db:"allowed_record_types" json:"allowed_record_types"`
	ExpiresAt          time.Time            `db:"expires_at" json:"expires_at"`
	RevokedAt          *time.Time           `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy          *string              `db:"revoked_by" json:"revoked_by,omitempty"`
	AccessLimit        *int                 `db:"access_limit" json:"access_limit,omitempty"`
	AccessCount        int                  `db:"access_count" json:"access_count"`
	CreatedAt          time.Time            `db:"created_at" json:"created_at"`
}

// Active is the derived liveness predicate: not revoked, not expired, not
// exhausted. It is computed, never stored.
func (t *AccessToken) Active(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if !now.Before(t.ExpiresAt) {
		return false
	}
	if t.AccessLimit != nil && t.AccessCount >= *t.AccessLimit {
		return false
	}
	return true
}

// Allows reports whether rt is inside the token's scope.
func (t *AccessToken) Allows(rt records.RecordType) bool {
	for _, a := range t.AllowedRecordTypes {
		if a == rt {
			return true
		}
	}
	return false
}

const (
	// secretPrefix marks raw secrets so they are recognizable in logs and
	// support tickets without exposing key material.
	secretPrefix = "afya_s1_"

	// secretRandomBytes is the entropy of the secret body (32 bytes = 256 bits,
	// encoded as 64 hex chars).
	secretRandomBytes = 32

	// displayPrefixLen is how much of the raw secret owners see in listings.
	displayPrefixLen = 12
)

// GenerateSecret produces a cryptographically random raw secret of the form
// afya_s1_<64-hex-chars>.
func GenerateSecret() (string, error) {
	b := make([]byte, secretRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(b), nil
}

// HashSecret returns the hex-encoded SHA-256 hash of a raw secret. The same
// function is used at issuance and at validation, so a stored hash can only
// ever be matched by re-presenting the original secret.
func HashSecret(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// DisplayPrefix returns the short identifying prefix of a raw secret that is
// safe to persist and show in listings.
func DisplayPrefix(raw string) string {
	if len(raw) < displayPrefixLen {
		return raw
	}
	return raw[:displayPrefixLen]
}
