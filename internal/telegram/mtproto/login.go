package mtproto

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"go.mirrord.dev/internal/telegram"
)

// LoginClient implements telegram.LoginClient for a pending session file.
// gotd persists the authorization into the session file as the flow
// progresses, so a completed login only needs the file moved into place.
type LoginClient struct {
	conn
}

func (c *LoginClient) SendCode(ctx context.Context, phone string) (string, error) {
	client, _, err := c.handles()
	if err != nil {
		return "", err
	}

	sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", translate(err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("unexpected send code response %T", sent)
	}
	return code.PhoneCodeHash, nil
}

func (c *LoginClient) SignIn(ctx context.Context, phone, code, codeHash string) error {
	client, _, err := c.handles()
	if err != nil {
		return err
	}

	if _, err := client.Auth().SignIn(ctx, phone, code, codeHash); err != nil {
		return translate(err)
	}
	return nil
}

func (c *LoginClient) Password(ctx context.Context, password string) error {
	client, _, err := c.handles()
	if err != nil {
		return err
	}

	if _, err := client.Auth().Password(ctx, password); err != nil {
		return translate(err)
	}
	return nil
}
