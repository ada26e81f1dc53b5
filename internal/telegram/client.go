package telegram

import "context"

// Client is one live session connection. Implementations translate platform
// errors into the taxonomy in errors.go before returning them.
type Client interface {
	// Connect establishes the connection. It may be called again after Close.
	Connect(ctx context.Context) error

	// Close stops the connection and releases resources.
	Close(ctx context.Context) error

	// IsAuthorized reports whether the session holds a valid authorization.
	IsAuthorized(ctx context.Context) (bool, error)

	// Self returns the account that owns the session.
	Self(ctx context.Context) (*Account, error)

	// ResolveChannel resolves a normalized channel reference (username or
	// numeric id) to a channel handle.
	ResolveChannel(ctx context.Context, name string) (*Channel, error)

	// JoinChannel joins the channel. Joining a channel the session is
	// already a member of is a no-op.
	JoinChannel(ctx context.Context, ch *Channel) error

	// LatestMessageID returns the id of the newest message in the channel,
	// or 0 when the channel is empty.
	LatestMessageID(ctx context.Context, ch *Channel) (int, error)

	// MessagesAfter fetches up to limit messages with id > minID, ordered
	// by ascending id.
	MessagesAfter(ctx context.Context, ch *Channel, minID, limit int) ([]Message, error)

	// SendText posts a text message and returns the new message id.
	// Entities may be nil for plain text.
	SendText(ctx context.Context, ch *Channel, text string, entities []Entity) (int, error)

	// SendFile posts media with an optional caption and returns the new
	// message id.
	SendFile(ctx context.Context, ch *Channel, file *Upload, caption string, entities []Entity) (int, error)

	// DownloadMedia fetches the referenced media into memory. Media larger
	// than maxBytes is rejected with ErrMediaTooLarge before download.
	DownloadMedia(ctx context.Context, media *MediaRef, maxBytes int64) (*Upload, error)
}

// Dialer constructs clients from session files. Dial does not connect; the
// caller owns the Connect/Close lifecycle.
type Dialer interface {
	Dial(ctx context.Context, sessionPath string) (Client, error)
}

// LoginClient drives the interactive code/password login for one session
// file. SignIn returns ErrPasswordNeeded when the account has two-step
// verification enabled; Password completes it.
type LoginClient interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// SendCode requests a confirmation code for the phone number and
	// returns the code hash to pass back to SignIn.
	SendCode(ctx context.Context, phone string) (string, error)

	SignIn(ctx context.Context, phone, code, codeHash string) error
	Password(ctx context.Context, password string) error

	IsAuthorized(ctx context.Context) (bool, error)
	Self(ctx context.Context) (*Account, error)
}

// LoginDialer constructs login clients writing to the given session path.
type LoginDialer interface {
	DialLogin(ctx context.Context, sessionPath string) (LoginClient, error)
}
