// Package notification is the outbound SMS/email dispatch boundary. Gateway
// credentials are passed in explicitly; nothing here reads ambient globals.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the channel used to deliver a notification.
type NotificationType string

const (
	TypeEmail NotificationType = "email"
	TypeSMS   NotificationType = "sms"
)

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// SMSConfig carries the SMS gateway credentials. Constructed from the config
// layer and handed to NewHTTPSMSSender; senders never reach into environment
// variables themselves.
type SMSConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
}

// HTTPSMSSender posts messages to an HTTP SMS gateway.
type HTTPSMSSender struct {
	cfg    SMSConfig
	client *http.Client
}

func NewHTTPSMSSender(cfg SMSConfig) *HTTPSMSSender {
	return &HTTPSMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSMSSender) SendSMS(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(map[string]string{
		"to":      to,
		"from":    s.cfg.SenderID,
		"message": body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", s.cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// Template defines a reusable notification template.
type Template struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Subject string           `json:"subject"`
	Body    string           `json:"body"`
	Type    NotificationType `json:"type"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:   "access-grant-created",
			Name: "Access Grant Created",
			Body: "Afya Nyumbani: {{grantee}} ({{grantee_type}}) has been granted access to your {{record_types}} until {{expires_at}}. Reply to your care coordinator if this is unexpected.",
			Type: TypeSMS,
		},
		{
			ID:   "access-grant-revoked",
			Name: "Access Grant Revoked",
			Body: "Afya Nyumbani: access for {{grantee}} ({{grantee_type}}) to your records has been revoked.",
			Type: TypeSMS,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

func (e *TemplateEngine) typeOf(templateID string) NotificationType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.templates[templateID]; ok {
		return t.Type
	}
	return TypeSMS
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Manager orchestrates sending, storage, and retrieval of notifications.
type Manager struct {
	emailSender   EmailSender
	smsSender     SMSSender
	templates     *TemplateEngine
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewManager constructs a Manager. Either sender may be nil if the channel is
// not configured; sending through a nil channel fails the notification.
func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		emailSender:   email,
		smsSender:     sms,
		templates:     tpl,
		notifications: make(map[string]*Notification),
	}
}

// Send dispatches a notification through the appropriate channel, assigns an
// ID and timestamps, and records the result in memory.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	var sendErr error
	switch {
	case n.Type == TypeEmail && m.emailSender != nil:
		sendErr = m.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case n.Type == TypeSMS && m.smsSender != nil:
		sendErr = m.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	default:
		sendErr = fmt.Errorf("no sender configured for type %s", n.Type)
	}

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Type:         m.templates.typeOf(templateID),
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// ListByRecipient returns notifications for a given recipient, up to limit.
func (m *Manager) ListByRecipient(_ context.Context, recipient string, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for _, n := range m.notifications {
		if n.Recipient == recipient {
			result = append(result, n)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
