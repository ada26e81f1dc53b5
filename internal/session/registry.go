// Package session discovers and connects the MTProto session files mirrord
// polls and posts through. The registry is the single owner of session
// handles; rescans keep it aligned with the sessions directory, and the join
// governor and health monitor layer pacing and liveness on top of it.
package session

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.mirrord.dev/internal/common/metrics"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
)

// ErrNotFound is returned when a session name resolves to nothing.
var ErrNotFound = errors.New("session not found")

// FileSuffix is the extension of session files; JournalSuffix marks the
// sidecar some clients keep next to them.
const (
	FileSuffix    = ".session"
	JournalSuffix = ".session-journal"
)

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._+-]+$`)

// ValidFileName reports whether name is acceptable as an uploaded session
// file: a plain file name with a .session or .session-journal suffix and a
// non-empty stem.
func ValidFileName(name string) bool {
	if !fileNamePattern.MatchString(name) {
		return false
	}
	var stem string
	switch {
	case strings.HasSuffix(name, JournalSuffix):
		stem = strings.TrimSuffix(name, JournalSuffix)
	case strings.HasSuffix(name, FileSuffix):
		stem = strings.TrimSuffix(name, FileSuffix)
	default:
		return false
	}
	return stem != ""
}

// Session is one session file and its client. Name is the file stem and File
// the file name, both immutable; the dense index is reassigned on rescan.
// Clients are safe for concurrent use, so the mutex only guards lifecycle.
type Session struct {
	Name string
	File string
	Path string

	mu        sync.Mutex
	index     int
	client    telegram.Client
	connected bool
}

// Index returns the session's position in file-name order, reassigned on
// every rescan.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Session) setIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = i
}

// Client returns the session's client, connecting it on first use.
func (s *Session) Client(ctx context.Context) (telegram.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, fmt.Errorf("session %s has no client", s.Name)
	}
	if !s.connected {
		if err := s.client.Connect(ctx); err != nil {
			return nil, err
		}
		s.connected = true
	}
	return s.client, nil
}

// Connected reports whether the session currently holds a live connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect closes the session's connection. The next Client call
// reconnects.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || !s.connected {
		return nil
	}
	s.connected = false
	return s.client.Close(ctx)
}

// Registry indexes the session files under one directory. Sessions are keyed
// by lowercased stem; lookups accept the stem, the file name, or any casing
// of either.
type Registry struct {
	dir    string
	dialer telegram.Dialer
	store  *state.Store

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(dir string, dialer telegram.Dialer, store *state.Store) *Registry {
	return &Registry{
		dir:      dir,
		dialer:   dialer,
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// Dir returns the sessions directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Rescan aligns the registry with the directory: new session files are
// dialed, files that disappeared are disconnected and dropped, and indexes
// are reassigned densely in file-name order. Returns how many sessions were
// added and removed.
func (r *Registry) Rescan(ctx context.Context) (added, removed int, err error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read sessions dir: %w", err)
	}

	present := make(map[string]string) // lowercased stem -> file name
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, FileSuffix) {
			continue
		}
		stem := strings.TrimSuffix(name, FileSuffix)
		if stem == "" {
			continue
		}
		key := strings.ToLower(stem)
		if prev, ok := present[key]; ok {
			slog.Warn("Duplicate session name, keeping first", "kept", prev, "skipped", name)
			continue
		}
		present[key] = name
	}

	var stale []*Session

	r.mu.Lock()
	for key, file := range present {
		if _, ok := r.sessions[key]; ok {
			continue
		}
		path := filepath.Join(r.dir, file)
		client, dialErr := r.dialer.Dial(ctx, path)
		if dialErr != nil {
			slog.Error("Session dial failed", "file", file, "error", dialErr)
			continue
		}
		r.sessions[key] = &Session{
			Name:   strings.TrimSuffix(file, FileSuffix),
			File:   file,
			Path:   path,
			client: client,
		}
		added++
		slog.Info("Session discovered", "name", r.sessions[key].Name, "file", file)
	}

	for key, sess := range r.sessions {
		if _, ok := present[key]; ok {
			continue
		}
		delete(r.sessions, key)
		stale = append(stale, sess)
		removed++
		slog.Info("Session removed", "name", sess.Name, "file", sess.File)
	}

	r.reindexLocked()
	total := len(r.sessions)
	r.mu.Unlock()

	for _, sess := range stale {
		if err := sess.Disconnect(ctx); err != nil {
			slog.Warn("Failed to disconnect removed session", "name", sess.Name, "error", err)
		}
	}

	metrics.SessionsTotal.Set(float64(total))
	return added, removed, nil
}

// reindexLocked assigns dense indexes in file-name order.
func (r *Registry) reindexLocked() {
	files := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		files = append(files, s)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].File < files[j].File })
	for i, s := range files {
		s.setIndex(i)
	}
}

// Get resolves a session by stem, file name, or any casing of either.
func (r *Registry) Get(name string) (*Session, bool) {
	key := strings.ToLower(state.NormalizeSessionName(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	return s, ok
}

// FindByName resolves a session like Get and connects it when it is not
// already online, so the handle is ready for immediate use. The session is
// returned even when the connect fails; liveness is probed separately.
func (r *Registry) FindByName(ctx context.Context, name string) (*Session, bool) {
	sess, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	if !sess.Connected() {
		if _, err := sess.Client(ctx); err != nil {
			slog.Debug("Session connect on lookup failed", "name", sess.Name, "error", err)
		}
	}
	return sess, true
}

// Sessions returns all sessions in file-name order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// Counts returns the number of discovered sessions and how many hold a live
// connection.
func (r *Registry) Counts() (total, online int) {
	for _, s := range r.Sessions() {
		total++
		if s.Connected() {
			online++
		}
	}
	return total, online
}

// Delete disconnects a session, removes its files and journal, and clears
// its recent-publish ring.
func (r *Registry) Delete(ctx context.Context, name string) error {
	key := strings.ToLower(state.NormalizeSessionName(name))

	r.mu.Lock()
	sess, ok := r.sessions[key]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.sessions, key)
	r.reindexLocked()
	total := len(r.sessions)
	r.mu.Unlock()

	if err := sess.Disconnect(ctx); err != nil {
		slog.Warn("Failed to disconnect session before delete", "name", sess.Name, "error", err)
	}

	if err := os.Remove(sess.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	if err := os.Remove(sess.Path + "-journal"); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove session journal", "name", sess.Name, "error", err)
	}

	r.store.ClearSessionRecent(sess.File)
	metrics.SessionsTotal.Set(float64(total))

	slog.Info("Session deleted", "name", sess.Name, "file", sess.File)
	return nil
}

// InstallFile writes an uploaded session file into the directory,
// overwriting any previous file of the same name. The caller validates size;
// names are validated here.
func (r *Registry) InstallFile(name string, data []byte) error {
	if !ValidFileName(name) {
		return fmt.Errorf("invalid session file name %q", name)
	}

	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	slog.Info("Session file installed", "file", name, "bytes", len(data))
	return nil
}

// Archive writes a zip holding the session file and its journal, if one
// exists, to w.
func (r *Registry) Archive(w io.Writer, name string) error {
	sess, ok := r.Get(name)
	if !ok {
		return ErrNotFound
	}

	zw := zip.NewWriter(w)
	if err := addZipFile(zw, sess.File, sess.Path); err != nil {
		zw.Close()
		return err
	}
	journal := sess.Path + "-journal"
	if _, err := os.Stat(journal); err == nil {
		if err := addZipFile(zw, sess.File+"-journal", journal); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addZipFile(zw *zip.Writer, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

// CloseAll disconnects every session, for shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	for _, s := range r.Sessions() {
		if err := s.Disconnect(ctx); err != nil {
			slog.Warn("Failed to disconnect session", "name", s.Name, "error", err)
		}
	}
}
