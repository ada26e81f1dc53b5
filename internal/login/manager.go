// Package login runs the interactive code/password flow that authorizes new
// session files. Each flow is tracked by a login_id; the session file is
// created in the pending directory and only moved into the sessions
// directory once Telegram confirms the authorization, so the registry never
// sees half-born sessions.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"go.mirrord.dev/internal/common/metrics"
	"go.mirrord.dev/internal/notify"
	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
)

// loginTTL is how long a pending login stays usable. Submitting a code, a
// password or a resend extends the deadline; an untouched login is swept.
const loginTTL = 10 * time.Minute

var (
	// ErrNotFound is returned when a login_id is unknown or already expired.
	ErrNotFound = errors.New("login not found or expired")

	// ErrInProgress is returned when the session name already has a pending
	// login.
	ErrInProgress = errors.New("login already in progress")

	// ErrExists is returned when the session file exists and force was not
	// set.
	ErrExists = errors.New("session already exists")

	// ErrPasswordRejected is returned when Telegram refuses the two-step
	// verification password.
	ErrPasswordRejected = errors.New("password rejected")

	// ErrInvalid marks a request rejected before touching any state.
	ErrInvalid = errors.New("invalid login request")
)

// Login flow steps as reported by Status.
const (
	StepCode     = "code"
	StepPassword = "password"
	StepDone     = "done"
	StepError    = "error"
)

// Status is one pending login's externally visible state.
type Status struct {
	LoginID      string `json:"login_id"`
	Step         string `json:"step"`
	Session      string `json:"session"`
	Phone        string `json:"phone_masked"`
	ExpiresInSec int    `json:"expires_in_sec"`
	NeedPassword bool   `json:"need_password"`
	LastError    string `json:"last_error,omitempty"`
	Message      string `json:"message"`
}

// pending is one in-flight login. All fields are guarded by Manager.mu; the
// client itself is only driven outside the lock.
type pending struct {
	id       string
	base     string
	phone    string
	force    bool
	client   telegram.LoginClient
	codeHash string
	step     string
	lastErr  string
	message  string
	expires  time.Time
}

func (p *pending) status(now time.Time) *Status {
	left := int(p.expires.Sub(now).Seconds())
	if left < 0 {
		left = 0
	}
	return &Status{
		LoginID:      p.id,
		Step:         p.step,
		Session:      p.base + session.FileSuffix,
		Phone:        maskPhone(p.phone),
		ExpiresInSec: left,
		NeedPassword: p.step == StepPassword,
		LastError:    p.lastErr,
		Message:      p.message,
	}
}

// Manager owns the pending login table. Network calls against Telegram run
// outside the table lock, so concurrent flows do not serialize on each
// other.
type Manager struct {
	dialer     telegram.LoginDialer
	registry   *session.Registry
	alerts     notify.Service
	clock      clockwork.Clock
	pendingDir string

	mu      sync.Mutex
	pending map[string]*pending
}

func NewManager(dialer telegram.LoginDialer, registry *session.Registry, alerts notify.Service, pendingDir string, clock clockwork.Clock) *Manager {
	return &Manager{
		dialer:     dialer,
		registry:   registry,
		alerts:     alerts,
		clock:      clock,
		pendingDir: pendingDir,
		pending:    make(map[string]*pending),
	}
}

// Start begins a login for the session name: it sends a confirmation code
// to the phone and returns the new login's status. An existing session file
// of the same name blocks the login unless force is set, in which case the
// file is replaced once the flow completes.
func (m *Manager) Start(ctx context.Context, sessionName, phone string, force bool) (*Status, error) {
	m.Sweep(ctx)

	base := state.NormalizeSessionName(sessionName)
	if base == "" || !session.ValidFileName(base+session.FileSuffix) {
		return nil, fmt.Errorf("%w: session name %q", ErrInvalid, sessionName)
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalid)
	}

	if !force && m.installed(base) {
		return nil, fmt.Errorf("%w: %s%s (set force to overwrite)", ErrExists, base, session.FileSuffix)
	}

	m.mu.Lock()
	for _, p := range m.pending {
		if strings.EqualFold(p.base, base) {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s%s", ErrInProgress, base, session.FileSuffix)
		}
	}
	m.mu.Unlock()

	// A stale pending file would resume some earlier half-finished
	// authorization instead of starting fresh.
	m.cleanupPending(base)

	path := filepath.Join(m.pendingDir, base+session.FileSuffix)
	client, err := m.dialer.DialLogin(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("dial login client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		m.cleanupPending(base)
		return nil, fmt.Errorf("connect: %w", err)
	}
	codeHash, err := client.SendCode(ctx, phone)
	if err != nil {
		_ = client.Close(ctx)
		m.cleanupPending(base)
		return nil, fmt.Errorf("send code: %w", err)
	}

	now := m.clock.Now()
	p := &pending{
		id:       uuid.NewString(),
		base:     base,
		phone:    phone,
		force:    force,
		client:   client,
		codeHash: codeHash,
		step:     StepCode,
		message:  "Enter the code Telegram sent to the account.",
		expires:  now.Add(loginTTL),
	}

	m.mu.Lock()
	m.pending[p.id] = p
	st := p.status(now)
	m.mu.Unlock()

	metrics.LoginsStarted.Inc()
	slog.Info("Login started", "session", base+session.FileSuffix, "phone", maskPhone(phone))
	return st, nil
}

// Code submits the confirmation code. On success the session file moves
// into place; when the account has two-step verification the login switches
// to the password step instead.
func (m *Manager) Code(ctx context.Context, loginID, code string) (*Status, error) {
	m.Sweep(ctx)

	loginID = strings.TrimSpace(loginID)
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if loginID == "" || code == "" {
		return nil, fmt.Errorf("%w: login_id and code are required", ErrInvalid)
	}

	m.mu.Lock()
	p, ok := m.pending[loginID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	client, phone, codeHash := p.client, p.phone, p.codeHash
	m.mu.Unlock()

	err := client.SignIn(ctx, phone, code, codeHash)
	switch {
	case err == nil:
		return m.complete(ctx, loginID, "Login completed.")
	case errors.Is(err, telegram.ErrPasswordNeeded):
		return m.update(loginID, func(p *pending) {
			p.step = StepPassword
			p.lastErr = ""
			p.message = "Account has two-step verification, submit the password."
			p.expires = m.clock.Now().Add(loginTTL)
		})
	default:
		m.fail(loginID, err)
		return nil, fmt.Errorf("sign in: %w", err)
	}
}

// Password completes a login stuck on the two-step verification step. For
// logins in any other step it reports the current status without side
// effects.
func (m *Manager) Password(ctx context.Context, loginID, password string) (*Status, error) {
	m.Sweep(ctx)

	loginID = strings.TrimSpace(loginID)
	password = strings.TrimSpace(password)
	if loginID == "" || password == "" {
		return nil, fmt.Errorf("%w: login_id and password are required", ErrInvalid)
	}

	m.mu.Lock()
	p, ok := m.pending[loginID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if p.step != StepPassword {
		st := p.status(m.clock.Now())
		m.mu.Unlock()
		return st, nil
	}
	client := p.client
	m.mu.Unlock()

	if err := client.Password(ctx, password); err != nil {
		m.update(loginID, func(p *pending) {
			p.step = StepError
			p.lastErr = err.Error()
			p.message = p.lastErr
			p.expires = m.clock.Now().Add(loginTTL)
		})
		return nil, fmt.Errorf("%w: %v", ErrPasswordRejected, err)
	}
	return m.complete(ctx, loginID, "Login completed with two-step verification.")
}

// Resend requests a fresh confirmation code, voiding the previous one. Only
// logins in the code or error step resend; others report status unchanged.
func (m *Manager) Resend(ctx context.Context, loginID string) (*Status, error) {
	m.Sweep(ctx)

	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return nil, fmt.Errorf("%w: login_id is required", ErrInvalid)
	}

	m.mu.Lock()
	p, ok := m.pending[loginID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if p.step != StepCode && p.step != StepError {
		st := p.status(m.clock.Now())
		m.mu.Unlock()
		return st, nil
	}
	client, phone := p.client, p.phone
	m.mu.Unlock()

	hash, err := client.SendCode(ctx, phone)
	if err != nil {
		m.fail(loginID, err)
		return nil, fmt.Errorf("resend code: %w", err)
	}
	return m.update(loginID, func(p *pending) {
		p.codeHash = hash
		p.step = StepCode
		p.lastErr = ""
		p.message = "A new code was sent, the previous one is void."
		p.expires = m.clock.Now().Add(loginTTL)
	})
}

// Cancel aborts a pending login and removes its half-written session file.
// Cancelling an unknown login reports false without error.
func (m *Manager) Cancel(ctx context.Context, loginID string) (bool, error) {
	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return false, fmt.Errorf("%w: login_id is required", ErrInvalid)
	}

	m.mu.Lock()
	p, ok := m.pending[loginID]
	if ok {
		delete(m.pending, loginID)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	_ = p.client.Close(ctx)
	m.cleanupPending(p.base)
	metrics.LoginsCompleted.WithLabelValues("cancelled").Inc()
	slog.Info("Login cancelled", "session", p.base+session.FileSuffix)
	return true, nil
}

// Status reports one pending login.
func (m *Manager) Status(ctx context.Context, loginID string) (*Status, error) {
	m.Sweep(ctx)

	loginID = strings.TrimSpace(loginID)
	if loginID == "" {
		return nil, fmt.Errorf("%w: login_id is required", ErrInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[loginID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.status(m.clock.Now()), nil
}

// Count returns the number of pending logins.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Sweep drops expired logins, closing their clients and deleting their
// pending files. It returns how many logins were dropped.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.clock.Now()

	m.mu.Lock()
	var dead []*pending
	for id, p := range m.pending {
		if now.After(p.expires) {
			delete(m.pending, id)
			dead = append(dead, p)
		}
	}
	m.mu.Unlock()

	for _, p := range dead {
		_ = p.client.Close(ctx)
		m.cleanupPending(p.base)
		metrics.LoginsCompleted.WithLabelValues("expired").Inc()
		slog.Info("Login expired", "session", p.base+session.FileSuffix, "phone", maskPhone(p.phone))
	}
	return len(dead)
}

// complete finishes a successful flow: the client is closed so the platform
// flushes the authorization into the pending file, the file moves into the
// sessions directory, and the registry picks it up on rescan.
func (m *Manager) complete(ctx context.Context, loginID, message string) (*Status, error) {
	m.mu.Lock()
	p, ok := m.pending[loginID]
	if ok {
		delete(m.pending, loginID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	_ = p.client.Close(ctx)

	if err := m.install(p.base, p.force); err != nil {
		m.cleanupPending(p.base)
		metrics.LoginsCompleted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("install session %s: %w", p.base+session.FileSuffix, err)
	}

	if _, _, err := m.registry.Rescan(ctx); err != nil {
		slog.Warn("Session rescan after login failed", "error", err)
	}

	metrics.LoginsCompleted.WithLabelValues("ok").Inc()
	m.alerts.NotifySystemEvent(notify.EventLoginCompleted,
		fmt.Sprintf("Session %s authorized for %s", p.base+session.FileSuffix, maskPhone(p.phone)))
	slog.Info("Login completed", "session", p.base+session.FileSuffix)

	p.step = StepDone
	p.lastErr = ""
	p.message = message
	return p.status(m.clock.Now()), nil
}

// update mutates one pending login under the lock and returns its fresh
// status.
func (m *Manager) update(loginID string, fn func(*pending)) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[loginID]
	if !ok {
		return nil, ErrNotFound
	}
	fn(p)
	return p.status(m.clock.Now()), nil
}

func (m *Manager) fail(loginID string, err error) {
	_, _ = m.update(loginID, func(p *pending) {
		p.step = StepError
		p.lastErr = err.Error()
		p.message = p.lastErr
	})
}

// installed reports whether the sessions directory already holds files for
// the name.
func (m *Manager) installed(base string) bool {
	dir := m.registry.Dir()
	if fileExists(filepath.Join(dir, base+session.FileSuffix)) {
		return true
	}
	return fileExists(filepath.Join(dir, base+session.JournalSuffix))
}

// install moves the pending session file into the sessions directory. Both
// directories live under the data dir, so a rename suffices.
func (m *Manager) install(base string, force bool) error {
	dir := m.registry.Dir()
	if force {
		_ = os.Remove(filepath.Join(dir, base+session.FileSuffix))
		_ = os.Remove(filepath.Join(dir, base+session.JournalSuffix))
	}

	src := filepath.Join(m.pendingDir, base+session.FileSuffix)
	dst := filepath.Join(dir, base+session.FileSuffix)
	if err := os.Rename(src, dst); err != nil {
		return err
	}

	journal := filepath.Join(m.pendingDir, base+session.JournalSuffix)
	if fileExists(journal) {
		_ = os.Rename(journal, filepath.Join(dir, base+session.JournalSuffix))
	}
	return nil
}

func (m *Manager) cleanupPending(base string) {
	_ = os.Remove(filepath.Join(m.pendingDir, base+session.FileSuffix))
	_ = os.Remove(filepath.Join(m.pendingDir, base+session.JournalSuffix))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// maskPhone hides the middle digits of a phone number for logs and status
// payloads.
func maskPhone(phone string) string {
	p := strings.TrimSpace(phone)
	if len(p) <= 4 {
		return "***"
	}
	return p[:2] + strings.Repeat("*", len(p)-4) + p[len(p)-2:]
}
