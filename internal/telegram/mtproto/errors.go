package mtproto

import (
	"errors"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"go.mirrord.dev/internal/telegram"
)

// translate maps gotd and RPC errors onto the boundary taxonomy. Errors with
// no mapping pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if d, ok := tgerr.AsFloodWait(err); ok {
		return &telegram.FloodWaitError{Duration: d}
	}

	switch {
	case errors.Is(err, auth.ErrPasswordAuthNeeded),
		tgerr.Is(err, "SESSION_PASSWORD_NEEDED"):
		return telegram.ErrPasswordNeeded

	case tgerr.Is(err, "CHANNEL_PRIVATE", "CHANNEL_PUBLIC_GROUP_NA", "USER_BANNED_IN_CHANNEL"):
		return telegram.ErrChannelPrivate

	case tgerr.Is(err, "CHAT_ADMIN_REQUIRED", "CHAT_WRITE_FORBIDDEN"):
		return telegram.ErrAdminRequired

	case tgerr.Is(err, "CHANNEL_INVALID", "PEER_ID_INVALID", "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"):
		return telegram.ErrChannelNotFound

	case tgerr.Is(err, "PHONE_CODE_INVALID"):
		return telegram.ErrCodeInvalid

	case tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		return telegram.ErrCodeExpired

	case tgerr.Is(err,
		"AUTH_KEY_UNREGISTERED",
		"AUTH_KEY_INVALID",
		"SESSION_REVOKED",
		"SESSION_EXPIRED",
		"USER_DEACTIVATED",
		"USER_DEACTIVATED_BAN",
	):
		return &telegram.TerminalAuthError{Reason: rpcType(err)}
	}

	return err
}

// rpcType extracts the RPC error type, falling back to the error text.
func rpcType(err error) string {
	var rpc *tgerr.Error
	if errors.As(err, &rpc) {
		return rpc.Type
	}
	return err.Error()
}
