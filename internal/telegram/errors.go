package telegram

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by clients. Adapters translate raw platform
// errors into these so the engine never inspects error strings.
var (
	// ErrNotAuthorized indicates the session file holds no valid login.
	ErrNotAuthorized = errors.New("session is not authorized")

	// ErrChannelPrivate indicates the channel is private or the session
	// was banned from it.
	ErrChannelPrivate = errors.New("channel is private")

	// ErrAdminRequired indicates the operation needs admin rights the
	// session does not have.
	ErrAdminRequired = errors.New("chat admin privileges required")

	// ErrChannelNotFound indicates the channel reference did not resolve.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrMediaTooLarge indicates the media exceeds the configured size cap.
	ErrMediaTooLarge = errors.New("media exceeds size limit")

	// ErrPasswordNeeded indicates the account requires the two-step
	// verification password to finish signing in.
	ErrPasswordNeeded = errors.New("two-step verification password required")

	// ErrCodeInvalid indicates the confirmation code was wrong.
	ErrCodeInvalid = errors.New("confirmation code invalid")

	// ErrCodeExpired indicates the confirmation code expired and must be
	// re-sent.
	ErrCodeExpired = errors.New("confirmation code expired")
)

// FloodWaitError carries the server-mandated wait before retrying.
type FloodWaitError struct {
	Duration time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s", e.Duration)
}

// FloodWait extracts the flood-wait duration from an error chain.
func FloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Duration, true
	}
	return 0, false
}

// TerminalAuthError marks an unrecoverable authorization loss such as a
// revoked session or a deactivated account. Sessions failing with it are
// stopped and reported dead rather than retried.
type TerminalAuthError struct {
	Reason string
}

func (e *TerminalAuthError) Error() string {
	return fmt.Sprintf("authorization lost: %s", e.Reason)
}

// IsTerminalAuth reports whether the error chain contains an unrecoverable
// authorization loss.
func IsTerminalAuth(err error) bool {
	var terminal *TerminalAuthError
	return errors.As(err, &terminal)
}

// IsChannelPrivate reports whether the error chain indicates a private or
// banned channel.
func IsChannelPrivate(err error) bool {
	return errors.Is(err, ErrChannelPrivate)
}

// IsAdminRequired reports whether the error chain indicates missing admin
// rights.
func IsAdminRequired(err error) bool {
	return errors.Is(err, ErrAdminRequired)
}
