package accesstoken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/accesslog"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

type ownerDirStub struct {
	exists bool
	err    error
}

func (o ownerDirStub) OwnerExists(context.Context, uuid.UUID) (bool, error) {
	return o.exists, o.err
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []*accesslog.Entry
}

func (a *auditRecorder) Record(_ context.Context, e *accesslog.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *auditRecorder) all() []*accesslog.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*accesslog.Entry(nil), a.entries...)
}

type notifierStub struct {
	created chan *AccessToken
	revoked chan *AccessToken
}

func newNotifierStub() *notifierStub {
	return &notifierStub{
		created: make(chan *AccessToken, 8),
		revoked: make(chan *AccessToken, 8),
	}
}

func (n *notifierStub) AccessGrantCreated(_ context.Context, t *AccessToken) { n.created <- t }
func (n *notifierStub) AccessGrantRevoked(_ context.Context, t *AccessToken) { n.revoked <- t }

func waitFor(t *testing.T, ch chan *AccessToken, what string) *AccessToken {
	t.Helper()
	select {
	case tok := <-ch:
		return tok
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s notification", what)
		return nil
	}
}

func newTestService(t *testing.T) (*Service, *MemRepo, *auditRecorder, *notifierStub) {
	t.Helper()
	repo := NewMemRepo()
	audit := &auditRecorder{}
	notifier := newNotifierStub()
	svc := NewService(repo, ownerDirStub{exists: true}, audit, notifier, zerolog.Nop(),
		24*time.Hour, 30*24*time.Hour)
	return svc, repo, audit, notifier
}

func validIssueParams() IssueParams {
	return IssueParams{
		OwnerID:     uuid.New(),
		GranteeID:   "dr-omondi",
		GranteeType: GranteeSpecialist,
		RecordTypes: []string{"lab_results", "prescriptions"},
	}
}

func TestService_Issue(t *testing.T) {
	svc, _, _, notifier := newTestService(t)

	tok, secret, err := svc.Issue(context.Background(), validIssueParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secret == "" {
		t.Fatal("expected raw secret")
	}
	if tok.SecretHash == secret {
		t.Error("stored hash must not equal raw secret")
	}
	if tok.SecretHash != HashSecret(secret) {
		t.Error("stored hash must match the returned secret")
	}
	if tok.SecretPrefix != DisplayPrefix(secret) {
		t.Error("display prefix must come from the raw secret")
	}
	if tok.AccessCount != 0 {
		t.Errorf("new token must start at count 0, got %d", tok.AccessCount)
	}
	if !tok.Active(time.Now()) {
		t.Error("new token must be active")
	}

	sent := waitFor(t, notifier.created, "grant-created")
	if sent.ID != tok.ID {
		t.Error("notification must carry the issued token")
	}
}

func TestService_Issue_NormalizesRecordTypes(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	p := validIssueParams()
	p.RecordTypes = []string{"vital_signs", "lab_results", "vital_signs"}
	tok, _, err := svc.Issue(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []records.RecordType{records.TypeLabResults, records.TypeVitalSigns}
	if len(tok.AllowedRecordTypes) != len(want) {
		t.Fatalf("expected %d types, got %d", len(want), len(tok.AllowedRecordTypes))
	}
	for i, rt := range want {
		if tok.AllowedRecordTypes[i] != rt {
			t.Errorf("position %d: expected %s, got %s", i, rt, tok.AllowedRecordTypes[i])
		}
	}
}

func TestService_Issue_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*IssueParams)
	}{
		{"missing owner", func(p *IssueParams) { p.OwnerID = uuid.Nil }},
		{"missing grantee", func(p *IssueParams) { p.GranteeID = "" }},
		{"unknown grantee type", func(p *IssueParams) { p.GranteeType = "neighbor" }},
		{"empty record types", func(p *IssueParams) { p.RecordTypes = nil }},
		{"unknown record type", func(p *IssueParams) { p.RecordTypes = []string{"diary"} }},
		{"zero access limit", func(p *IssueParams) { zero := 0; p.AccessLimit = &zero }},
		{"negative duration", func(p *IssueParams) { d := -1; p.DurationHours = &d }},
		{"past expiry", func(p *IssueParams) { at := time.Now().Add(-time.Hour); p.ExpiresAt = &at }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validIssueParams()
			tc.mutate(&p)
			_, _, err := svc.Issue(context.Background(), p)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestService_Issue_UnknownOwner(t *testing.T) {
	repo := NewMemRepo()
	svc := NewService(repo, ownerDirStub{exists: false}, &auditRecorder{}, nil, zerolog.Nop(),
		24*time.Hour, 30*24*time.Hour)

	_, _, err := svc.Issue(context.Background(), validIssueParams())
	if !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
}

func TestService_Issue_Expiry(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	t.Run("default duration applies", func(t *testing.T) {
		tok, _, err := svc.Issue(context.Background(), validIssueParams())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !tok.ExpiresAt.Equal(base.Add(24 * time.Hour)) {
			t.Errorf("expected default 24h expiry, got %v", tok.ExpiresAt)
		}
	})

	t.Run("duration wins over explicit expiry", func(t *testing.T) {
		p := validIssueParams()
		hours := 2
		at := base.Add(100 * time.Hour)
		p.DurationHours = &hours
		p.ExpiresAt = &at
		tok, _, err := svc.Issue(context.Background(), p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !tok.ExpiresAt.Equal(base.Add(2 * time.Hour)) {
			t.Errorf("expected duration to win, got %v", tok.ExpiresAt)
		}
	})

	t.Run("duration capped at configured max", func(t *testing.T) {
		p := validIssueParams()
		hours := 24 * 365
		p.DurationHours = &hours
		tok, _, err := svc.Issue(context.Background(), p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !tok.ExpiresAt.Equal(base.Add(30 * 24 * time.Hour)) {
			t.Errorf("expected expiry capped at 30 days, got %v", tok.ExpiresAt)
		}
	})

	t.Run("explicit expiry honored under the cap", func(t *testing.T) {
		p := validIssueParams()
		at := base.Add(72 * time.Hour)
		p.ExpiresAt = &at
		tok, _, err := svc.Issue(context.Background(), p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !tok.ExpiresAt.Equal(at) {
			t.Errorf("expected explicit expiry, got %v", tok.ExpiresAt)
		}
	})
}

func issueFor(t *testing.T, svc *Service, mutate func(*IssueParams)) (*AccessToken, string) {
	t.Helper()
	p := validIssueParams()
	if mutate != nil {
		mutate(&p)
	}
	tok, secret, err := svc.Issue(context.Background(), p)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return tok, secret
}

func TestService_Authorize_UnknownSecret(t *testing.T) {
	svc, _, audit, _ := newTestService(t)
	issueFor(t, svc, nil)

	_, _, err := svc.Authorize(context.Background(), "afya_s1_deadbeef", nil, AccessMeta{})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if n := len(audit.all()); n != 0 {
		t.Errorf("unknown secrets must not be audited, got %d entries", n)
	}
}

func TestService_Authorize_GrantFullScope(t *testing.T) {
	svc, _, audit, _ := newTestService(t)
	tok, secret := issueFor(t, svc, nil)

	granted, got, err := svc.Authorize(context.Background(), secret, nil, AccessMeta{
		OriginIP:  "10.0.0.9",
		UserAgent: "insurer-portal/2.1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != tok.ID {
		t.Error("expected the issued token back")
	}
	if got.AccessCount != 1 {
		t.Errorf("expected count 1 after grant, got %d", got.AccessCount)
	}
	if len(granted) != 2 {
		t.Fatalf("empty request must grant the full scope, got %v", granted)
	}

	entries := audit.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Outcome != accesslog.OutcomeGranted {
		t.Errorf("expected granted outcome, got %s", e.Outcome)
	}
	if e.TokenID != tok.ID {
		t.Error("entry must reference the token")
	}
	if e.OriginIP != "10.0.0.9" || e.UserAgent != "insurer-portal/2.1" {
		t.Error("entry must carry request metadata")
	}
	if e.AccessorID == nil || *e.AccessorID != tok.GranteeID {
		t.Error("entry must name the grantee")
	}
}

func TestService_Authorize_SubsetRequest(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, secret := issueFor(t, svc, nil)

	granted, _, err := svc.Authorize(context.Background(), secret, []string{"lab_results"}, AccessMeta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(granted) != 1 || granted[0] != records.TypeLabResults {
		t.Errorf("expected only lab_results, got %v", granted)
	}
}

func TestService_Authorize_ScopeViolation(t *testing.T) {
	svc, repo, audit, _ := newTestService(t)
	tok, secret := issueFor(t, svc, func(p *IssueParams) {
		limit := 5
		p.AccessLimit = &limit
	})

	_, _, err := svc.Authorize(context.Background(), secret,
		[]string{"lab_results", "medical_history"}, AccessMeta{})

	var sve *ScopeViolationError
	if !errors.As(err, &sve) {
		t.Fatalf("expected ScopeViolationError, got %v", err)
	}
	if len(sve.Denied) != 1 || sve.Denied[0] != records.TypeMedicalHistory {
		t.Errorf("expected medical_history denied, got %v", sve.Denied)
	}

	// All-or-nothing: no partial grant, no consumption.
	stored, _ := repo.GetByID(context.Background(), tok.ID)
	if stored.AccessCount != 0 {
		t.Errorf("scope violation must not consume an access, count %d", stored.AccessCount)
	}

	entries := audit.all()
	if len(entries) != 1 || entries[0].Outcome != accesslog.OutcomeScopeDenied {
		t.Fatalf("expected one scope_denied entry, got %v", entries)
	}
}

func TestService_Authorize_UnrecognizedRequestedType(t *testing.T) {
	svc, repo, audit, _ := newTestService(t)
	tok, secret := issueFor(t, svc, nil)

	// A tag outside the record-type vocabulary is malformed input, not a
	// scope violation against this token.
	_, _, err := svc.Authorize(context.Background(), secret, []string{"diary"}, AccessMeta{})

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var sve *ScopeViolationError
	if errors.As(err, &sve) {
		t.Error("unrecognized types must not read as a scope violation")
	}

	stored, _ := repo.GetByID(context.Background(), tok.ID)
	if stored.AccessCount != 0 {
		t.Errorf("malformed request must not consume an access, count %d", stored.AccessCount)
	}
	if n := len(audit.all()); n != 0 {
		t.Errorf("malformed requests are rejected before audit, got %d entries", n)
	}
}

func TestService_Authorize_ExpiryDominates(t *testing.T) {
	svc, _, audit, _ := newTestService(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	_, secret := issueFor(t, svc, func(p *IssueParams) {
		hours := 1
		p.DurationHours = &hours
	})

	svc.now = func() time.Time { return base.Add(61 * time.Minute) }

	_, _, err := svc.Authorize(context.Background(), secret, nil, AccessMeta{})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied after expiry, got %v", err)
	}
	entries := audit.all()
	if len(entries) != 1 || entries[0].Outcome != accesslog.OutcomeDenied {
		t.Fatalf("expected one denied entry, got %v", entries)
	}
}

func TestService_Authorize_LimitExhaustion(t *testing.T) {
	svc, _, audit, _ := newTestService(t)
	_, secret := issueFor(t, svc, func(p *IssueParams) {
		limit := 3
		p.AccessLimit = &limit
	})

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Authorize(context.Background(), secret, nil, AccessMeta{}); err != nil {
			t.Fatalf("grant %d failed: %v", i+1, err)
		}
	}

	_, _, err := svc.Authorize(context.Background(), secret, nil, AccessMeta{})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected denial after limit, got %v", err)
	}

	entries := audit.all()
	if len(entries) != 4 {
		t.Fatalf("expected 4 audit entries, got %d", len(entries))
	}
	for i := 0; i < 3; i++ {
		if entries[i].Outcome != accesslog.OutcomeGranted {
			t.Errorf("entry %d: expected granted, got %s", i, entries[i].Outcome)
		}
	}
	if entries[3].Outcome != accesslog.OutcomeDenied {
		t.Errorf("final entry: expected denied, got %s", entries[3].Outcome)
	}
}

func TestService_Revoke(t *testing.T) {
	svc, _, _, notifier := newTestService(t)
	tok, secret := issueFor(t, svc, nil)
	by := "mama-akinyi"

	revoked, err := svc.Revoke(context.Background(), tok.ID, nil, &by)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Fatal("expected revoked_at set")
	}
	if revoked.RevokedBy == nil || *revoked.RevokedBy != by {
		t.Error("expected revoked_by recorded")
	}
	waitFor(t, notifier.revoked, "grant-revoked")

	if _, _, err := svc.Authorize(context.Background(), secret, nil, AccessMeta{}); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("revoked token must be denied, got %v", err)
	}

	// Repeat revocation is a quiet no-op.
	again, err := svc.Revoke(context.Background(), tok.ID, nil, &by)
	if err != nil {
		t.Fatalf("second revoke must succeed, got %v", err)
	}
	if !again.RevokedAt.Equal(*revoked.RevokedAt) {
		t.Error("revocation timestamp must not move")
	}
	select {
	case <-notifier.revoked:
		t.Error("repeat revocation must not notify again")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := svc.Revoke(context.Background(), uuid.New(), nil, nil); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestService_Revoke_OwnerScoping(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	tok, _ := issueFor(t, svc, nil)
	other := uuid.New()

	if _, err := svc.Revoke(context.Background(), tok.ID, &other, nil); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("foreign owner must see not found, got %v", err)
	}
	if _, err := svc.Revoke(context.Background(), tok.ID, &tok.OwnerID, nil); err != nil {
		t.Fatalf("owner revoke failed: %v", err)
	}
}

func TestService_PeekActive(t *testing.T) {
	svc, _, audit, _ := newTestService(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	tok, secret := issueFor(t, svc, nil)

	active, err := svc.PeekActive(context.Background(), secret)
	if err != nil || !active {
		t.Fatalf("expected active, got %v %v", active, err)
	}

	svc.now = func() time.Time { return base.Add(48 * time.Hour) }
	active, err = svc.PeekActive(context.Background(), secret)
	if err != nil || active {
		t.Fatalf("expected inactive after expiry, got %v %v", active, err)
	}

	active, err = svc.PeekActive(context.Background(), "afya_s1_unknown")
	if err != nil || active {
		t.Fatalf("unknown secret must read inactive without error, got %v %v", active, err)
	}

	if n := len(audit.all()); n != 0 {
		t.Errorf("peeking must not write audit entries, got %d", n)
	}

	stored, _ := svc.repo.GetByID(context.Background(), tok.ID)
	if stored.AccessCount != 0 {
		t.Errorf("peeking must not consume accesses, count %d", stored.AccessCount)
	}
}

func TestService_Get_OwnerScoping(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	tok, _ := issueFor(t, svc, nil)
	other := uuid.New()

	if _, err := svc.Get(context.Background(), tok.ID, &other); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("foreign owner must see not found, got %v", err)
	}
	got, err := svc.Get(context.Background(), tok.ID, &tok.OwnerID)
	if err != nil {
		t.Fatalf("owner get failed: %v", err)
	}
	if got.ID != tok.ID {
		t.Error("expected the issued token")
	}
	if _, err := svc.Get(context.Background(), tok.ID, nil); err != nil {
		t.Fatalf("unscoped get failed: %v", err)
	}
}
