package accesstoken

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/accesslog"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/auth"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/pkg/pagination"
)

type Handler struct {
	svc      *Service
	logs     *accesslog.Service
	registry *records.Registry
}

func NewHandler(svc *Service, logs *accesslog.Service, registry *records.Registry) *Handler {
	return &Handler{svc: svc, logs: logs, registry: registry}
}

// RegisterRoutes mounts the owner management API on api (bearer-authenticated)
// and the grantee-facing endpoints on share (no session auth: the token secret
// is the credential).
func (h *Handler) RegisterRoutes(api *echo.Group, share *echo.Group) {
	api.POST("/access-tokens", h.IssueToken)
	api.GET("/access-tokens", h.ListTokens)
	api.GET("/access-tokens/:id", h.GetToken)
	api.POST("/access-tokens/:id/revoke", h.RevokeToken)
	api.GET("/access-tokens/:id/logs", h.ListTokenLogs)

	share.POST("/records", h.ShareRecords)
	share.GET("/status", h.ShareStatus)
}

type issueRequest struct {
	OwnerID            string     `json:"owner_id"`
	GranteeID          string     `json:"grantee_id"`
	GranteeType        string     `json:"grantee_type"`
	AllowedRecordTypes []string   `json:"allowed_record_types"`
	ExpiresAt          *time.Time `json:"expires_at"`
	DurationHours      *int       `json:"duration_hours"`
	AccessLimit        *int       `json:"access_limit"`
}

type issueResponse struct {
	Token   *AccessToken `json:"token"`
	Secret  string       `json:"secret"`
	Warning string       `json:"warning"`
}

// IssueToken creates a token for the authenticated owner. Admins may issue on
// behalf of any owner by setting owner_id.
func (h *Handler) IssueToken(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ownerID, err := h.resolveOwner(c, req.OwnerID)
	if err != nil {
		return err
	}

	t, secret, err := h.svc.Issue(c.Request().Context(), IssueParams{
		OwnerID:       ownerID,
		GranteeID:     req.GranteeID,
		GranteeType:   GranteeType(req.GranteeType),
		RecordTypes:   req.AllowedRecordTypes,
		ExpiresAt:     req.ExpiresAt,
		DurationHours: req.DurationHours,
		AccessLimit:   req.AccessLimit,
	})
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusCreated, issueResponse{
		Token:   t,
		Secret:  secret,
		Warning: "store this secret now; it cannot be retrieved again",
	})
}

func (h *Handler) ListTokens(c echo.Context) error {
	ownerID, err := h.resolveOwner(c, c.QueryParam("owner_id"))
	if err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByOwner(c.Request().Context(), ownerID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetToken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	t, err := h.svc.Get(c.Request().Context(), id, h.ownerScope(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, t)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RevokeToken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req revokeRequest
	_ = c.Bind(&req) // body is optional

	var revokedBy *string
	if subject := auth.UserIDFromContext(c.Request().Context()); subject != "" {
		revokedBy = &subject
	}

	t, err := h.svc.Revoke(c.Request().Context(), id, h.ownerScope(c), revokedBy)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTokenLogs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	// Ownership gate first: a foreign token reads as not found.
	if _, err := h.svc.Get(c.Request().Context(), id, h.ownerScope(c)); err != nil {
		return mapError(err)
	}

	pg := pagination.FromContext(c)
	entries, total, err := h.logs.ListByToken(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

type shareRequest struct {
	Token                string   `json:"token"`
	RequestedRecordTypes []string `json:"requested_record_types"`
}

type shareResponse struct {
	GrantedRecordTypes []records.RecordType                    `json:"granted_record_types"`
	Records            map[records.RecordType][]records.Record `json:"records"`
	ExpiresAt          time.Time                               `json:"expires_at"`
}

// ShareRecords validates a presented secret and returns the granted records
// grouped by type.
func (h *Handler) ShareRecords(c echo.Context) error {
	var req shareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	meta := AccessMeta{
		OriginIP:  c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}

	granted, t, err := h.svc.Authorize(c.Request().Context(), req.Token, req.RequestedRecordTypes, meta)
	if err != nil {
		return mapError(err)
	}

	data, err := h.registry.FetchGranted(c.Request().Context(), t.OwnerID, granted)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetching records failed")
	}

	return c.JSON(http.StatusOK, shareResponse{
		GrantedRecordTypes: granted,
		Records:            data,
		ExpiresAt:          t.ExpiresAt,
	})
}

// ShareStatus reports whether a secret is currently usable. No access unit is
// consumed and no audit entry is written.
func (h *Handler) ShareStatus(c echo.Context) error {
	secret := c.QueryParam("token")
	if secret == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	active, err := h.svc.PeekActive(c.Request().Context(), secret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"active": active})
}

// ownerScope returns the owner id management reads are restricted to, or nil
// for admins, who see every owner's tokens.
func (h *Handler) ownerScope(c echo.Context) *uuid.UUID {
	ctx := c.Request().Context()
	for _, r := range auth.RolesFromContext(ctx) {
		if r == "admin" {
			return nil
		}
	}
	if id, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		return &id
	}
	// Non-admin with a non-uuid subject matches nothing.
	nothing := uuid.Nil
	return &nothing
}

// resolveOwner picks the owner id for issuance and listing: the explicit
// owner_id for admins, the caller's own subject otherwise.
func (h *Handler) resolveOwner(c echo.Context, explicit string) (uuid.UUID, error) {
	scope := h.ownerScope(c)
	if scope == nil {
		if explicit == "" {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
		}
		id, err := uuid.Parse(explicit)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid owner_id")
		}
		return id, nil
	}
	if explicit != "" {
		if id, err := uuid.Parse(explicit); err == nil && id != *scope {
			return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "cannot act on behalf of another owner")
		}
	}
	if *scope == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unrecognized subject")
	}
	return *scope, nil
}

// mapError translates domain errors to HTTP responses. Denials stay
// deliberately unexplained; scope violations name the offending types.
func mapError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	}
	var sve *ScopeViolationError
	if errors.As(err, &sve) {
		return echo.NewHTTPError(http.StatusForbidden, map[string]interface{}{
			"error":               "scope_violation",
			"denied_record_types": records.TypeStrings(sve.Denied),
		})
	}
	switch {
	case errors.Is(err, ErrAccessDenied):
		return echo.NewHTTPError(http.StatusUnauthorized, map[string]interface{}{
			"error": "access_denied",
		})
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrOwnerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
