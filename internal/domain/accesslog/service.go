package accesslog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

// FailureSink receives a signal for every audit entry that could not be
// persisted, so operators can alert on a dying audit trail without the
// authorization path ever blocking on it.
type FailureSink interface {
	AuditWriteFailure()
}

// FailureSinkFunc adapts a function to FailureSink.
type FailureSinkFunc func()

func (f FailureSinkFunc) AuditWriteFailure() { f() }

// Service writes and lists audit entries. Record never surfaces an error to
// the authorizing flow: a lost audit write is an operational problem, not an
// authorization failure.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	failures FailureSink
}

// NewService creates the audit log service. sink may be nil.
func NewService(repo Repository, logger zerolog.Logger, sink FailureSink) *Service {
	return &Service{repo: repo, logger: logger, failures: sink}
}

// Record persists one audit entry. Record types are sorted before the write
// so stored entries are deterministic regardless of request order. The write
// uses a cancellation-detached context: once an access is consumed the
// attempt is recorded even if the caller has gone away.
func (s *Service) Record(ctx context.Context, e *Entry) {
	records.SortTypes(e.RecordTypes)

	if err := s.repo.Create(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Error().Err(err).
			Str("token_id", e.TokenID.String()).
			Str("outcome", string(e.Outcome)).
			Msg("audit entry write failed")
		if s.failures != nil {
			s.failures.AuditWriteFailure()
		}
	}
}

// ListByToken returns a token's audit entries newest-first.
func (s *Service) ListByToken(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByToken(ctx, tokenID, limit, offset)
}
