package accesstoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/accesslog"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

// OwnerDirectory answers whether a prospective token owner exists. Implemented
// by the client directory service.
type OwnerDirectory interface {
	OwnerExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Auditor records resolved access attempts. Implemented by accesslog.Service;
// recording never fails the authorization path.
type Auditor interface {
	Record(ctx context.Context, e *accesslog.Entry)
}

// Notifier is the outbound notification boundary. Calls are fire-and-forget:
// issuance and revocation never block on, or fail because of, notification
// dispatch.
type Notifier interface {
	AccessGrantCreated(ctx context.Context, t *AccessToken)
	AccessGrantRevoked(ctx context.Context, t *AccessToken)
}

// IssueParams are the inputs to token issuance. RecordTypes carries the raw
// request tags; validation and normalization happen inside Issue.
type IssueParams struct {
	OwnerID       uuid.UUID
	GranteeID     string
	GranteeType   GranteeType
	RecordTypes   []string
	ExpiresAt     *time.Time
	DurationHours *int
	AccessLimit   *int
}

// AccessMeta carries request-level context for the audit trail.
type AccessMeta struct {
	OriginIP  string
	UserAgent string
}

// Service implements the token lifecycle: issuance, validation and
// authorization with usage accounting, and revocation.
type Service struct {
	repo     Repository
	owners   OwnerDirectory
	audit    Auditor
	notifier Notifier
	logger   zerolog.Logger

	now        func() time.Time
	defaultTTL time.Duration
	maxTTL     time.Duration
}

// NewService wires the token service. notifier may be nil (notifications are
// skipped); audit must not be nil.
func NewService(repo Repository, owners OwnerDirectory, audit Auditor, notifier Notifier, logger zerolog.Logger, defaultTTL, maxTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		owners:     owners,
		audit:      audit,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
	}
}

// Issue creates a new access token and returns it together with the raw
// secret. The raw secret exists only in this return value; all that is stored
// is its hash and a short display prefix.
func (s *Service) Issue(ctx context.Context, p IssueParams) (*AccessToken, string, error) {
	if p.OwnerID == uuid.Nil {
		return nil, "", &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if p.GranteeID == "" {
		return nil, "", &ValidationError{Field: "grantee_id", Reason: "required"}
	}
	if !p.GranteeType.Valid() {
		return nil, "", &ValidationError{Field: "grantee_type", Reason: fmt.Sprintf("unknown grantee type %q", p.GranteeType)}
	}
	types, err := records.ParseTypes(p.RecordTypes)
	if err != nil {
		return nil, "", &ValidationError{Field: "allowed_record_types", Reason: err.Error()}
	}
	if p.AccessLimit != nil && *p.AccessLimit <= 0 {
		return nil, "", &ValidationError{Field: "access_limit", Reason: "must be positive when set"}
	}

	now := s.now()
	expiresAt, err := s.resolveExpiry(now, p)
	if err != nil {
		return nil, "", err
	}

	exists, err := s.owners.OwnerExists(ctx, p.OwnerID)
	if err != nil {
		return nil, "", fmt.Errorf("checking owner: %w", err)
	}
	if !exists {
		return nil, "", ErrOwnerNotFound
	}

	raw, err := GenerateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generating secret: %w", err)
	}

	t := &AccessToken{
		ID:                 uuid.New(),
		SecretHash:         HashSecret(raw),
		SecretPrefix:       DisplayPrefix(raw),
		OwnerID:            p.OwnerID,
		GranteeID:          p.GranteeID,
		GranteeType:        p.GranteeType,
		AllowedRecordTypes: types,
		ExpiresAt:          expiresAt,
		AccessLimit:        p.AccessLimit,
		CreatedAt:          now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, "", fmt.Errorf("storing token: %w", err)
	}

	s.logger.Info().
		Str("token_id", t.ID.String()).
		Str("owner_id", t.OwnerID.String()).
		Str("grantee_type", string(t.GranteeType)).
		Time("expires_at", t.ExpiresAt).
		Msg("access token issued")

	s.notify(ctx, t, func(n Notifier, t *AccessToken) { n.AccessGrantCreated(context.WithoutCancel(ctx), t) })
	return t, raw, nil
}

// resolveExpiry picks the expiry instant: duration wins over an explicit
// timestamp when both are given, the configured default applies when neither
// is, and the result is never further out than the configured maximum.
func (s *Service) resolveExpiry(now time.Time, p IssueParams) (time.Time, error) {
	ceiling := now.Add(s.maxTTL)

	switch {
	case p.DurationHours != nil:
		if *p.DurationHours <= 0 {
			return time.Time{}, &ValidationError{Field: "duration_hours", Reason: "must be positive"}
		}
		at := now.Add(time.Duration(*p.DurationHours) * time.Hour)
		if at.After(ceiling) {
			at = ceiling
		}
		return at, nil
	case p.ExpiresAt != nil:
		if !p.ExpiresAt.After(now) {
			return time.Time{}, &ValidationError{Field: "expires_at", Reason: "must be in the future"}
		}
		at := *p.ExpiresAt
		if at.After(ceiling) {
			at = ceiling
		}
		return at, nil
	default:
		return now.Add(s.defaultTTL), nil
	}
}

// Authorize resolves a presented secret, enforces scope, consumes one access
// unit, and returns the granted record types. requested may be empty, meaning
// the token's full scope. Every attempt that resolves to a stored token is
// audited exactly once; an unknown secret is not (there is no token row to
// reference) and is indistinguishable from an inactive one to the caller.
func (s *Service) Authorize(ctx context.Context, rawSecret string, requested []string, meta AccessMeta) ([]records.RecordType, *AccessToken, error) {
	reqTypes, err := records.ParseTypes(requested)
	if err != nil {
		return nil, nil, &ValidationError{Field: "requested_record_types", Reason: err.Error()}
	}

	t, err := s.repo.GetBySecretHash(ctx, HashSecret(rawSecret))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, nil, ErrAccessDenied
		}
		return nil, nil, fmt.Errorf("resolving secret: %w", err)
	}

	now := s.now()
	if len(reqTypes) == 0 {
		reqTypes = make([]records.RecordType, len(t.AllowedRecordTypes))
		copy(reqTypes, t.AllowedRecordTypes)
	}

	if !t.Active(now) {
		s.record(ctx, t, reqTypes, accesslog.OutcomeDenied, meta, now)
		return nil, nil, ErrAccessDenied
	}

	var denied []records.RecordType
	for _, rt := range reqTypes {
		if !t.Allows(rt) {
			denied = append(denied, rt)
		}
	}
	if len(denied) > 0 {
		s.record(ctx, t, reqTypes, accesslog.OutcomeScopeDenied, meta, now)
		return nil, nil, &ScopeViolationError{Denied: denied}
	}

	consumed, err := s.repo.ConsumeAccess(ctx, t.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("consuming access: %w", err)
	}
	if !consumed {
		// Lost the race against an expiry, revocation, or a parallel caller
		// taking the last unit.
		s.record(ctx, t, reqTypes, accesslog.OutcomeDenied, meta, now)
		return nil, nil, ErrAccessDenied
	}
	t.AccessCount++

	s.record(ctx, t, reqTypes, accesslog.OutcomeGranted, meta, now)
	return reqTypes, t, nil
}

// PeekActive reports whether a presented secret resolves to an active token.
// It consumes nothing and writes no audit entry.
func (s *Service) PeekActive(ctx context.Context, rawSecret string) (bool, error) {
	t, err := s.repo.GetBySecretHash(ctx, HashSecret(rawSecret))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolving secret: %w", err)
	}
	return t.Active(s.now()), nil
}

// Get returns a token's metadata. When ownerID is non-nil the token must
// belong to that owner; a foreign token reads as not found so existence is
// not disclosed across owners.
func (s *Service) Get(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*AccessToken, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != nil && t.OwnerID != *ownerID {
		return nil, ErrTokenNotFound
	}
	return t, nil
}

// ListByOwner returns an owner's tokens newest-first.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*AccessToken, int, error) {
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Revoke permanently deactivates a token. Revoking an already-revoked token
// is a no-op success; the returned token reflects current state either way.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, revokedBy *string) (*AccessToken, error) {
	t, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	performed, err := s.repo.Revoke(ctx, id, revokedBy, s.now())
	if err != nil {
		return nil, fmt.Errorf("revoking token: %w", err)
	}

	t, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if performed {
		s.logger.Info().
			Str("token_id", t.ID.String()).
			Str("owner_id", t.OwnerID.String()).
			Msg("access token revoked")
		s.notify(ctx, t, func(n Notifier, t *AccessToken) { n.AccessGrantRevoked(context.WithoutCancel(ctx), t) })
	}
	return t, nil
}

func (s *Service) record(ctx context.Context, t *AccessToken, types []records.RecordType, outcome accesslog.Outcome, meta AccessMeta, now time.Time) {
	accessor := t.GranteeID
	s.audit.Record(ctx, &accesslog.Entry{
		ID:          uuid.New(),
		TokenID:     t.ID,
		AccessorID:  &accessor,
		RecordTypes: types,
		Outcome:     outcome,
		OriginIP:    meta.OriginIP,
		UserAgent:   meta.UserAgent,
		AccessedAt:  now,
	})
}

func (s *Service) notify(ctx context.Context, t *AccessToken, fn func(Notifier, *AccessToken)) {
	if s.notifier == nil {
		return
	}
	cp := copyToken(t)
	go fn(s.notifier, cp)
}
