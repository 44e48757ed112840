package notification

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/accesstoken"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/client"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
)

// ClientDirectory resolves a token owner to their contact details.
type ClientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*client.Client, error)
}

// GrantNotifier tells a token's owner about grant lifecycle events by SMS.
// It implements the token service's notification boundary; failures are
// logged and dropped, never surfaced to the lifecycle operation.
type GrantNotifier struct {
	mgr     *Manager
	clients ClientDirectory
	logger  zerolog.Logger
}

func NewGrantNotifier(mgr *Manager, clients ClientDirectory, logger zerolog.Logger) *GrantNotifier {
	return &GrantNotifier{mgr: mgr, clients: clients, logger: logger}
}

func (n *GrantNotifier) AccessGrantCreated(ctx context.Context, t *accesstoken.AccessToken) {
	n.send(ctx, t, "access-grant-created", map[string]string{
		"grantee":      t.GranteeID,
		"grantee_type": string(t.GranteeType),
		"record_types": strings.Join(records.TypeStrings(t.AllowedRecordTypes), ", "),
		"expires_at":   t.ExpiresAt.Format(time.RFC1123),
	})
}

func (n *GrantNotifier) AccessGrantRevoked(ctx context.Context, t *accesstoken.AccessToken) {
	n.send(ctx, t, "access-grant-revoked", map[string]string{
		"grantee":      t.GranteeID,
		"grantee_type": string(t.GranteeType),
	})
}

func (n *GrantNotifier) send(ctx context.Context, t *accesstoken.AccessToken, templateID string, data map[string]string) {
	owner, err := n.clients.Get(ctx, t.OwnerID)
	if err != nil {
		n.logger.Error().Err(err).
			Str("token_id", t.ID.String()).
			Str("owner_id", t.OwnerID.String()).
			Msg("resolving owner for notification failed")
		return
	}

	if _, err := n.mgr.SendFromTemplate(ctx, templateID, data, owner.Phone); err != nil {
		n.logger.Error().Err(err).
			Str("token_id", t.ID.String()).
			Str("template", templateID).
			Msg("grant notification failed")
	}
}
