package mirror

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"go.mirrord.dev/internal/session"
	"go.mirrord.dev/internal/state"
	"go.mirrord.dev/internal/telegram"
)

// fakeClient implements telegram.Client for engine, republisher and admin
// tests. The source history, send outcomes and download payloads are
// configurable; calls are recorded.
type fakeClient struct {
	mu sync.Mutex

	connectErr error
	authorized bool
	authErr    error

	title      string
	resolveErr error
	joinErr    error

	latest    int
	latestErr error

	history  []telegram.Message
	fetchErr error
	fetches  int

	sendErr error
	nextID  int

	upload      *telegram.Upload
	downloadErr error

	texts  []sentText
	files  []sentFile
	joined []string
}

type sentText struct {
	channel  string
	text     string
	entities []telegram.Entity
}

type sentFile struct {
	channel string
	caption string
	name    string
	photo   bool
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeClient) Close(ctx context.Context) error {
	return nil
}

func (f *fakeClient) IsAuthorized(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return false, f.authErr
	}
	return f.authorized, nil
}

func (f *fakeClient) Self(ctx context.Context) (*telegram.Account, error) {
	return &telegram.Account{ID: 1, Username: "fake"}, nil
}

func (f *fakeClient) ResolveChannel(ctx context.Context, name string) (*telegram.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &telegram.Channel{ID: 1000, Username: name, Title: f.title}, nil
}

func (f *fakeClient) JoinChannel(ctx context.Context, ch *telegram.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = append(f.joined, ch.Username)
	return nil
}

func (f *fakeClient) LatestMessageID(ctx context.Context, ch *telegram.Channel) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return 0, f.latestErr
	}
	return f.latest, nil
}

func (f *fakeClient) MessagesAfter(ctx context.Context, ch *telegram.Channel, minID, limit int) ([]telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	msgs := append([]telegram.Message(nil), f.history...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

	var out []telegram.Message
	for _, m := range msgs {
		if m.ID <= minID {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeClient) SendText(ctx context.Context, ch *telegram.Channel, text string, entities []telegram.Entity) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.texts = append(f.texts, sentText{channel: ch.Username, text: text, entities: entities})
	return 500 + f.nextID, nil
}

func (f *fakeClient) SendFile(ctx context.Context, ch *telegram.Channel, file *telegram.Upload, caption string, entities []telegram.Entity) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.files = append(f.files, sentFile{channel: ch.Username, caption: caption, name: file.Name, photo: file.Photo})
	return 500 + f.nextID, nil
}

func (f *fakeClient) DownloadMedia(ctx context.Context, media *telegram.MediaRef, maxBytes int64) (*telegram.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if f.upload != nil {
		return f.upload, nil
	}
	return &telegram.Upload{Name: "photo.jpg", MIME: "image/jpeg", Data: []byte("jpeg"), Photo: true}, nil
}

func (f *fakeClient) sentTexts() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.texts...)
}

func (f *fakeClient) sentFiles() []sentFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFile(nil), f.files...)
}

func (f *fakeClient) joinedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joined...)
}

func (f *fakeClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// fakeDialer hands out one fakeClient per session file.
type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{clients: make(map[string]*fakeClient)}
}

func (d *fakeDialer) Dial(ctx context.Context, sessionPath string) (telegram.Client, error) {
	return d.client(filepath.Base(sessionPath)), nil
}

// client returns the fake for a session file, creating it so tests can
// configure behavior before the file is dialed.
func (d *fakeDialer) client(file string) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.clients[file]; ok {
		return c
	}
	c := &fakeClient{authorized: true}
	d.clients[file] = c
	return c
}

// fakeAlerts records notifications for assertions.
type fakeAlerts struct {
	mu     sync.Mutex
	posts  []recordedPost
	events []recordedEvent
}

type recordedPost struct {
	identity string
	dest     string
	link     string
}

type recordedEvent struct {
	eventType string
	message   string
}

func (f *fakeAlerts) NotifyNewPost(identity, dest, link string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, recordedPost{identity: identity, dest: dest, link: link})
}

func (f *fakeAlerts) NotifySystemEvent(eventType, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{eventType: eventType, message: message})
}

func (f *fakeAlerts) NotifyCriticalError(message, source string) {}

func (f *fakeAlerts) IsEnabled() bool { return true }

func (f *fakeAlerts) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *fakeAlerts) eventCount(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, e := range f.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

// harness wires a full mirror stack over fakes and a temp state dir.
type harness struct {
	t        *testing.T
	dialer   *fakeDialer
	alerts   *fakeAlerts
	store    *state.Store
	registry *session.Registry
	governor *session.JoinGovernor
	failover *Failover
	repub    *Republisher
	admin    *Admin
	engine   *Engine
}

func newHarness(t *testing.T, files ...string) *harness {
	t.Helper()

	dir := t.TempDir()
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("session"), 0o600); err != nil {
			t.Fatalf("Failed to write session file: %v", err)
		}
	}

	h := &harness{
		t:      t,
		dialer: newFakeDialer(),
		alerts: &fakeAlerts{},
		store:  state.NewStore(filepath.Join(dir, "state.json")),
	}
	h.registry = session.NewRegistry(dir, h.dialer, h.store)
	if _, _, err := h.registry.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}

	h.governor = session.NewJoinGovernor(clockwork.NewRealClock(), time.Hour, 0)
	h.failover = NewFailover(h.registry, h.store, h.alerts)
	h.repub = NewRepublisher(h.registry, h.store, h.governor, h.alerts, MediaPolicy{Include: true, MaxBytes: 64 << 20})
	h.admin = NewAdmin(h.registry, h.store, h.governor, h.failover)
	h.engine = NewEngine(EngineConfig{Tick: time.Minute, BatchMax: 50}, h.store, h.governor, h.failover, h.repub, clockwork.NewRealClock())
	return h
}

func (h *harness) session(name string) *session.Session {
	h.t.Helper()

	sess, ok := h.registry.Get(name)
	if !ok {
		h.t.Fatalf("Session %s not in registry", name)
	}
	return sess
}

// connect dials the named session so Connected reports true, returning its
// fake client.
func (h *harness) connect(name string) *fakeClient {
	h.t.Helper()

	sess := h.session(name)
	if _, err := sess.Client(context.Background()); err != nil {
		h.t.Fatalf("Failed to connect session %s: %v", name, err)
	}
	return h.dialer.client(sess.File)
}

// bindPoller binds the source to the named session the way an upsert would.
func (h *harness) bindPoller(source, name string) {
	h.t.Helper()

	sess := h.session(name)
	h.store.PutPoller(source, sess.Name, sess.Index())
}

// putJob stores a job directly, deriving its id when unset.
func (h *harness) putJob(j state.Job) state.Job {
	h.t.Helper()

	if j.ID == "" {
		j.ID = state.JobID(j.Source, j.Dest, j.PostMode, j.PostSessionName, j.BotToken)
	}
	h.store.PutJob(j)
	job, _ := h.store.GetJob(j.ID)
	return job
}

func (h *harness) putUserJob(source, dest, postSession string, cursor int) state.Job {
	h.t.Helper()

	return h.putJob(state.Job{
		Source:          source,
		Dest:            dest,
		PostMode:        state.PostModeUser,
		PostSessionName: postSession,
		LastOkID:        cursor,
	})
}

func (h *harness) putBotJob(source, dest, token string, cursor int) state.Job {
	h.t.Helper()

	return h.putJob(state.Job{
		Source:   source,
		Dest:     dest,
		PostMode: state.PostModeBot,
		BotToken: token,
		LastOkID: cursor,
	})
}

func (h *harness) job(id string) state.Job {
	h.t.Helper()

	job, ok := h.store.GetJob(id)
	if !ok {
		h.t.Fatalf("Job %s not in store", id)
	}
	return job
}

// markDead puts the named session's file in the dead map, the way the health
// monitor does.
func (h *harness) markDead(name, cause string) {
	h.t.Helper()

	sess := h.session(name)
	dead := h.store.DeadSessions()
	if dead == nil {
		dead = make(map[string]state.DeadSession)
	}
	dead[sess.File] = state.DeadSession{TS: time.Now(), Reason: "DIE", LastError: cause}
	h.store.SetDeadSessions(dead)
}
