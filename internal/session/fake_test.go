package session

import (
	"context"
	"path/filepath"
	"sync"

	"go.mirrord.dev/internal/telegram"
)

// fakeClient implements telegram.Client for registry, governor and monitor
// tests. Behavior is driven by the error fields; calls are recorded.
type fakeClient struct {
	mu sync.Mutex

	connectErr error
	authorized bool
	authErr    error
	resolveErr error
	joinErr    error

	connects  int
	closes    int
	joined    []string
	connected bool
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	f.connected = true
	return nil
}

func (f *fakeClient) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
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
	return &telegram.Channel{ID: 100, Username: name}, nil
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
	return 0, nil
}

func (f *fakeClient) MessagesAfter(ctx context.Context, ch *telegram.Channel, minID, limit int) ([]telegram.Message, error) {
	return nil, nil
}

func (f *fakeClient) SendText(ctx context.Context, ch *telegram.Channel, text string, entities []telegram.Entity) (int, error) {
	return 0, nil
}

func (f *fakeClient) SendFile(ctx context.Context, ch *telegram.Channel, file *telegram.Upload, caption string, entities []telegram.Entity) (int, error) {
	return 0, nil
}

func (f *fakeClient) DownloadMedia(ctx context.Context, media *telegram.MediaRef, maxBytes int64) (*telegram.Upload, error) {
	return nil, nil
}

func (f *fakeClient) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joined)
}

func (f *fakeClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeClient) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// fakeDialer hands out one fakeClient per session file.
type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	dialed  []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{clients: make(map[string]*fakeClient)}
}

func (d *fakeDialer) Dial(ctx context.Context, sessionPath string) (telegram.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dialed = append(d.dialed, sessionPath)
	file := filepath.Base(sessionPath)
	if c, ok := d.clients[file]; ok {
		return c, nil
	}
	c := &fakeClient{authorized: true}
	d.clients[file] = c
	return c, nil
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

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}
