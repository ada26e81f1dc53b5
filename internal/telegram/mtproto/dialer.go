package mtproto

import (
	"context"

	"go.mirrord.dev/internal/telegram"
)

// Dialer creates MTProto clients bound to session files. Dialing does not
// connect; callers drive Connect and Close themselves.
type Dialer struct {
	appID   int
	appHash string
}

func NewDialer(appID int, appHash string) *Dialer {
	return &Dialer{appID: appID, appHash: appHash}
}

func (d *Dialer) Dial(ctx context.Context, sessionPath string) (telegram.Client, error) {
	return &Client{conn: conn{appID: d.appID, appHash: d.appHash, path: sessionPath}}, nil
}

func (d *Dialer) DialLogin(ctx context.Context, sessionPath string) (telegram.LoginClient, error) {
	return &LoginClient{conn: conn{appID: d.appID, appHash: d.appHash, path: sessionPath}}, nil
}
