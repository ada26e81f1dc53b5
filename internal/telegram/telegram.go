// Package telegram defines the platform boundary of mirrord: the message and
// channel model, the client interfaces implemented by the MTProto and Bot API
// transports, and the error taxonomy the engine classifies platform failures
// with. Nothing in this package talks to the network.
package telegram

import "time"

// Channel identifies a resolved channel. ID is the bare channel id without
// the -100 chat prefix. Username is empty for private channels.
type Channel struct {
	ID         int64
	AccessHash int64
	Username   string
	Title      string
}

// Account describes the user behind a session.
type Account struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// Message is one post fetched from a source channel. GroupedID is shared by
// all members of an album and zero for singletons. Entity offsets are in
// UTF-16 code units.
type Message struct {
	ID        int
	GroupedID int64
	Text      string
	Entities  []Entity
	Media     *MediaRef
	Date      time.Time
}

// MediaKind classifies mirrorable media.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
)

// MediaRef describes media attached to a fetched message. Ref is an opaque
// handle owned by the client that produced the message; only that client can
// download it.
type MediaRef struct {
	Kind     MediaKind
	Size     int64
	Filename string
	MIME     string
	Ref      any
}

// Upload is a media payload held in memory for re-posting.
type Upload struct {
	Name  string
	MIME  string
	Data  []byte
	Photo bool
}
