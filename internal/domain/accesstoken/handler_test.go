package accesstoken

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/accesslog"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/domain/records"
	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/auth"
)

type handlerFixture struct {
	handler *Handler
	svc     *Service
	echo    *echo.Echo
	ownerID uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	repo := NewMemRepo()
	logRepo := accesslog.NewMemRepo()
	logSvc := accesslog.NewService(logRepo, zerolog.Nop(), nil)
	svc := NewService(repo, ownerDirStub{exists: true}, logSvc, nil, zerolog.Nop(),
		24*time.Hour, 30*24*time.Hour)

	registry := records.NewRegistry()
	registry.Register(records.TypeLabResults, records.SourceFunc(
		func(_ context.Context, ownerID uuid.UUID, _ int) ([]records.Record, error) {
			return []records.Record{{
				ID:         uuid.New(),
				Type:       records.TypeLabResults,
				RecordedAt: time.Now(),
				Summary:    "HbA1c 5.4%",
			}}, nil
		}))

	return &handlerFixture{
		handler: NewHandler(svc, logSvc, registry),
		svc:     svc,
		echo:    echo.New(),
		ownerID: uuid.New(),
	}
}

// asOwner builds an echo context carrying the fixture owner's identity, the
// way the bearer-auth middleware would.
func (f *handlerFixture) asOwner(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, f.ownerID.String())
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"client"})
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	return f.echo.NewContext(req, rec), rec
}

func (f *handlerFixture) asPublic(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return f.echo.NewContext(req, rec), rec
}

func (f *handlerFixture) issue(t *testing.T, body string) (tokenID, secret string) {
	t.Helper()
	c, rec := f.asOwner(http.MethodPost, "/api/v1/access-tokens", body)
	if err := f.handler.IssueToken(c); err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token  map[string]interface{} `json:"token"`
		Secret string                 `json:"secret"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.Token["id"].(string), resp.Secret
}

const issueBody = `{
	"grantee_id": "dr-omondi",
	"grantee_type": "specialist",
	"allowed_record_types": ["lab_results", "vital_signs"],
	"duration_hours": 24
}`

func TestHandler_IssueToken(t *testing.T) {
	f := newHandlerFixture(t)
	c, rec := f.asOwner(http.MethodPost, "/api/v1/access-tokens", issueBody)

	if err := f.handler.IssueToken(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"secret":"afya_s1_`) {
		t.Error("response must carry the raw secret exactly once")
	}
	if strings.Contains(body, "secret_hash") {
		t.Error("secret hash must never be serialized")
	}
	if !strings.Contains(body, "store this secret now") {
		t.Error("response must warn that the secret is shown once")
	}
}

func TestHandler_IssueToken_Validation(t *testing.T) {
	f := newHandlerFixture(t)
	c, rec := f.asOwner(http.MethodPost, "/api/v1/access-tokens",
		`{"grantee_id": "dr-omondi", "grantee_type": "specialist", "allowed_record_types": ["diary"]}`)

	err := f.handler.IssueToken(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v (rec %d)", err, rec.Code)
	}
}

func TestHandler_GetToken_ForeignOwnerReadsNotFound(t *testing.T) {
	f := newHandlerFixture(t)
	tokenID, _ := f.issue(t, issueBody)

	stranger := newHandlerFixture(t)
	stranger.handler = f.handler // same backing service, different identity
	c, _ := stranger.asOwner(http.MethodGet, "/api/v1/access-tokens/"+tokenID, "")
	c.SetParamNames("id")
	c.SetParamValues(tokenID)

	err := f.handler.GetToken(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a foreign token, got %v", err)
	}
}

func TestHandler_ShareRecords(t *testing.T) {
	f := newHandlerFixture(t)
	_, secret := f.issue(t, issueBody)

	c, rec := f.asPublic(http.MethodPost, "/share/records",
		`{"token": "`+secret+`", "requested_record_types": ["lab_results"]}`)
	if err := f.handler.ShareRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp shareResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.GrantedRecordTypes) != 1 || resp.GrantedRecordTypes[0] != records.TypeLabResults {
		t.Errorf("expected lab_results granted, got %v", resp.GrantedRecordTypes)
	}
	if len(resp.Records[records.TypeLabResults]) != 1 {
		t.Errorf("expected one lab record, got %v", resp.Records)
	}
}

func TestHandler_ShareRecords_UnknownSecret(t *testing.T) {
	f := newHandlerFixture(t)
	f.issue(t, issueBody)

	c, _ := f.asPublic(http.MethodPost, "/share/records", `{"token": "afya_s1_bogus"}`)
	err := f.handler.ShareRecords(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	msg, _ := he.Message.(map[string]interface{})
	if msg["error"] != "access_denied" {
		t.Errorf("denial must be unexplained, got %v", he.Message)
	}
}

func TestHandler_ShareRecords_ScopeViolation(t *testing.T) {
	f := newHandlerFixture(t)
	_, secret := f.issue(t, issueBody)

	c, _ := f.asPublic(http.MethodPost, "/share/records",
		`{"token": "`+secret+`", "requested_record_types": ["prescriptions"]}`)
	err := f.handler.ShareRecords(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	msg, _ := he.Message.(map[string]interface{})
	if msg["error"] != "scope_violation" {
		t.Errorf("expected scope_violation, got %v", he.Message)
	}
	denied, _ := msg["denied_record_types"].([]string)
	if len(denied) != 1 || denied[0] != "prescriptions" {
		t.Errorf("expected prescriptions denied, got %v", msg["denied_record_types"])
	}
}

func TestHandler_ShareStatus(t *testing.T) {
	f := newHandlerFixture(t)
	_, secret := f.issue(t, issueBody)

	c, rec := f.asPublic(http.MethodGet, "/share/status?token="+secret, "")
	if err := f.handler.ShareStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"active":true`) {
		t.Errorf("expected active true, got %s", rec.Body.String())
	}

	c, rec = f.asPublic(http.MethodGet, "/share/status?token=afya_s1_bogus", "")
	if err := f.handler.ShareStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"active":false`) {
		t.Errorf("unknown secret must read inactive, got %s", rec.Body.String())
	}
}

func TestHandler_RevokeToken(t *testing.T) {
	f := newHandlerFixture(t)
	tokenID, secret := f.issue(t, issueBody)

	c, rec := f.asOwner(http.MethodPost, "/api/v1/access-tokens/"+tokenID+"/revoke", "")
	c.SetParamNames("id")
	c.SetParamValues(tokenID)
	if err := f.handler.RevokeToken(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"revoked_at":`) {
		t.Error("response must show the revocation")
	}

	// The secret is dead from this point on.
	c, _ = f.asPublic(http.MethodPost, "/share/records", `{"token": "`+secret+`"}`)
	err := f.handler.ShareRecords(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revocation, got %v", err)
	}
}

func TestHandler_ListTokenLogs(t *testing.T) {
	f := newHandlerFixture(t)
	tokenID, secret := f.issue(t, issueBody)

	c, _ := f.asPublic(http.MethodPost, "/share/records", `{"token": "`+secret+`"}`)
	if err := f.handler.ShareRecords(c); err != nil {
		t.Fatalf("priming an access: %v", err)
	}

	c, rec := f.asOwner(http.MethodGet, "/api/v1/access-tokens/"+tokenID+"/logs", "")
	c.SetParamNames("id")
	c.SetParamValues(tokenID)
	if err := f.handler.ListTokenLogs(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data  []accesslog.Entry `json:"data"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Fatalf("expected one audit entry, got %+v", resp)
	}
	if resp.Data[0].Outcome != accesslog.OutcomeGranted {
		t.Errorf("expected granted outcome, got %s", resp.Data[0].Outcome)
	}
}

func TestHandler_ListTokens(t *testing.T) {
	f := newHandlerFixture(t)
	f.issue(t, issueBody)
	f.issue(t, issueBody)

	c, rec := f.asOwner(http.MethodGet, "/api/v1/access-tokens", "")
	if err := f.handler.ListTokens(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("expected 2 tokens, got %d", resp.Total)
	}
	if strings.Contains(rec.Body.String(), "secret_hash") {
		t.Error("listings must never expose the secret hash")
	}
}
