package accesstoken

import (
	"errors"
	"fmt"
	"strings"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

var (
	// ErrAccessDenied is returned for every presented secret that does not
	// resolve to an active token: unknown, expired, revoked, and exhausted
	// secrets are deliberately indistinguishable to the presenting party.
	ErrAccessDenied = errors.New("access denied")

	// ErrTokenNotFound indicates an unknown token id in an owner-facing
	// management call.
	ErrTokenNotFound = errors.New("access token not found")

	// ErrOwnerNotFound indicates the issuing client does not exist.
	ErrOwnerNotFound = errors.New("owner not found")
)

// ValidationError reports a malformed issuance input. The caller can correct
// the named field and retry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ScopeViolationError is returned when a valid, active token is asked for
// record types outside its scope. The check is all-or-nothing: no partial
// grant is issued and no access unit is consumed. Naming the offending types
// is safe here because the caller already holds a valid token.
type ScopeViolationError struct {
	Denied []records.RecordType
}

func (e *ScopeViolationError) Error() string {
	return "requested record types not covered by token scope: " +
		strings.Join(records.TypeStrings(e.Denied), ", ")
}
