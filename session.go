package imapbox

import (
	"errors"
	"time"
)

// Usage errors. They signal a caller mistake, not a server failure.
var (
	// ErrNotConnected is returned by mailbox operations issued while no
	// session is held.
	ErrNotConnected = errors.New("imapbox: not connected")

	// ErrUseDiscard is returned by Delete; messages are removed with
	// Discard (flag) or Remove (flag + expunge), never by item deletion.
	ErrUseDiscard = errors.New("imapbox: delete by item is not supported, use Discard or Remove")
)

// FetchChunk is one message block of a FETCH response: the head line up
// to and including the literal size declaration, and the literal bytes
// that followed it. The body is delivered exactly as received; the
// facade validates it against the declared size.
type FetchChunk struct {
	Head string
	Body []byte
}

// Session is the IMAP collaborator surface consumed by Mailbox. It maps
// one-to-one onto IMAP4rev1 commands; implementations own the socket,
// TLS, and command framing.
//
// Raw responses are lightly normalised: Search returns the text after
// "* SEARCH", List returns lines with the leading "* LIST " stripped,
// and Fetch splits each message into a FetchChunk at the literal
// boundary with the closing parenthesis line dropped. Session
// implementations are not safe for concurrent use.
type Session interface {
	Login(username, password string) error
	Logout() error
	Select(folder string) error
	Search(criteria string) (string, error)
	Fetch(set, items string) ([]FetchChunk, error)
	Append(folder string, flags []string, date time.Time, message []byte) error
	Store(set, action, flags string) error
	Copy(set, folder string) error
	Expunge() error
	List() ([]string, error)
	Capability() (string, error)
}
