// Package mtproto implements the telegram client interfaces over MTProto
// using gotd. One conn wraps one session file; the engine owns the
// Connect/Close lifecycle and every API error is translated into the
// boundary taxonomy before it leaves this package.
package mtproto

import (
	"context"
	"errors"
	"sync"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/session"
	tdclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"go.mirrord.dev/internal/telegram"
)

var errNotConnected = errors.New("mtproto: not connected")

// conn owns the gotd client lifecycle shared by Client and LoginClient.
// The run loop is detached from the Connect context so a connection dialed
// from a short-lived request outlives it until Close.
type conn struct {
	appID   int
	appHash string
	path    string

	mu     sync.Mutex
	client *tdclient.Client
	api    *tg.Client
	stop   bg.StopFunc
}

func (c *conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return nil
	}

	client := tdclient.NewClient(c.appID, c.appHash, tdclient.Options{
		SessionStorage: &session.FileStorage{Path: c.path},
		Device: tdclient.DeviceConfig{
			DeviceModel: "mirrord",
		},
	})

	stop, err := bg.Connect(client)
	if err != nil {
		return translate(err)
	}

	c.client = client
	c.api = client.API()
	c.stop = stop
	return nil
}

func (c *conn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop == nil {
		return nil
	}

	err := c.stop()
	c.client = nil
	c.api = nil
	c.stop = nil
	return err
}

// handles returns the live client or errNotConnected.
func (c *conn) handles() (*tdclient.Client, *tg.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, nil, errNotConnected
	}
	return c.client, c.api, nil
}

func (c *conn) IsAuthorized(ctx context.Context) (bool, error) {
	client, _, err := c.handles()
	if err != nil {
		return false, err
	}

	status, err := client.Auth().Status(ctx)
	if err != nil {
		return false, translate(err)
	}
	return status.Authorized, nil
}

func (c *conn) Self(ctx context.Context) (*telegram.Account, error) {
	client, _, err := c.handles()
	if err != nil {
		return nil, err
	}

	user, err := client.Self(ctx)
	if err != nil {
		return nil, translate(err)
	}

	return &telegram.Account{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Phone:     user.Phone,
	}, nil
}
