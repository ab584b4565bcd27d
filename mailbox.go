package imapbox

import (
	"fmt"
	"iter"
	"strings"
	"time"
)

// Data-item specs understood by Fetch.
const (
	// ItemFull fetches the entire RFC822 message.
	ItemFull = "RFC822"
	// ItemHeader fetches the header block only, which is materially
	// cheaper when only metadata is needed.
	ItemHeader = "RFC822.HEADER"
)

// UIDSet is an ordered list of message identifiers. Its String form is
// the comma-joined set accepted by Fetch, Copy, Discard and Remove.
type UIDSet []string

func (s UIDSet) String() string { return strings.Join(s, ",") }

// FetchItem is one validated fetch result.
type FetchItem struct {
	UID  string
	Body []byte
}

// Item pairs a message identifier with its fully fetched message.
type Item struct {
	UID     string
	Message *Message
}

// Store is the dictionary-like mailbox contract. *Mailbox is its only
// implementation; the interface exists so consumers can fake the
// mailbox without a server.
type Store interface {
	Keys() (UIDSet, error)
	Values() iter.Seq2[*Message, error]
	Items() ([]Item, error)
	Get(uid string) (*Message, error)
	Fetch(set, what string) ([]FetchItem, error)
	Add(message []byte, folder string) error
	Copy(set, folder string) error
	Discard(set string) error
	Remove(set string) error
	Delete(uid string) error
	Search(query string) (UIDSet, error)
	ListFolders() iter.Seq2[Folder, error]
	Select(folder string) error
	CurrentFolder() string
	Count() (int, error)
}

var _ Store = (*Mailbox)(nil)

// Mailbox presents one IMAP account as a dictionary-like message store.
// It owns the connection: Connect acquires a session, Disconnect
// releases it, and every other operation requires a live session.
// Exactly one folder is selected at a time; identifiers are only
// meaningful for the current selection. Not safe for concurrent use,
// the underlying session is not reentrant.
type Mailbox struct {
	Host     string
	Port     int
	Username string
	Password string

	folder  string
	oauth2  bool
	session Session
	now     func() time.Time
}

// NewMailbox returns a disconnected mailbox using LOGIN authentication.
// An empty folder selects INBOX on connect.
func NewMailbox(host string, port int, username, password, folder string) *Mailbox {
	return &Mailbox{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		folder:   defaultFolder(folder),
	}
}

// NewMailboxOAuth2 returns a disconnected mailbox that authenticates
// with XOAUTH2 using the given access token.
func NewMailboxOAuth2(host string, port int, username, accessToken, folder string) *Mailbox {
	mb := NewMailbox(host, port, username, accessToken, folder)
	mb.oauth2 = true
	return mb
}

// NewMailboxSession wraps an already authenticated session, for callers
// that hold their own connection. The folder is selected immediately.
func NewMailboxSession(session Session, folder string) (*Mailbox, error) {
	mb := &Mailbox{folder: defaultFolder(folder), session: session}
	if err := session.Select(mb.folder); err != nil {
		return nil, err
	}
	return mb, nil
}

func defaultFolder(folder string) string {
	if folder == "" {
		return "INBOX"
	}
	return folder
}

// Connect dials the server, authenticates, and selects the configured
// folder. Connecting an already connected mailbox is a no-op.
func (mb *Mailbox) Connect() error {
	if mb.session != nil {
		return nil
	}

	var (
		s   Session
		err error
	)
	if mb.oauth2 {
		s, err = NewWithOAuth2(mb.Username, mb.Password, mb.Host, mb.Port)
	} else {
		s, err = New(mb.Username, mb.Password, mb.Host, mb.Port)
	}
	if err != nil {
		return err
	}

	if err := s.Select(mb.folder); err != nil {
		_ = s.Logout()
		return err
	}
	mb.session = s
	return nil
}

// Disconnect logs out and releases the session.
func (mb *Mailbox) Disconnect() error {
	if mb.session == nil {
		return ErrNotConnected
	}
	err := mb.session.Logout()
	mb.session = nil
	return err
}

// With runs fn on a connected mailbox and disconnects afterwards on
// every exit path, including panics.
func (mb *Mailbox) With(fn func(*Mailbox) error) (err error) {
	if err = mb.Connect(); err != nil {
		return err
	}
	defer func() {
		if cerr := mb.Disconnect(); err == nil {
			err = cerr
		}
	}()
	return fn(mb)
}

// live returns the current session or ErrNotConnected.
func (mb *Mailbox) live() (Session, error) {
	if mb.session == nil {
		return nil, ErrNotConnected
	}
	return mb.session, nil
}

func (mb *Mailbox) timeNow() time.Time {
	if mb.now != nil {
		return mb.now()
	}
	return time.Now()
}

// Keys returns the identifiers of every message in the selected folder,
// in server order.
func (mb *Mailbox) Keys() (UIDSet, error) {
	s, err := mb.live()
	if err != nil {
		return nil, err
	}
	data, err := s.Search("ALL")
	if err != nil {
		return nil, err
	}
	return UIDSet(strings.Fields(data)), nil
}

// Count returns the number of messages in the selected folder.
func (mb *Mailbox) Count() (int, error) {
	keys, err := mb.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Search expands any macros in the query (see ExpandSearchMacros) and
// returns the identifiers of matching messages.
func (mb *Mailbox) Search(query string) (UIDSet, error) {
	s, err := mb.live()
	if err != nil {
		return nil, err
	}
	criteria := ExpandSearchMacros(query, mb.timeNow())
	debugLog(-1, mb.folder, "searching", "criteria", criteria)
	data, err := s.Search(criteria)
	if err != nil {
		return nil, err
	}
	return UIDSet(strings.Fields(data)), nil
}

// Fetch issues one fetch for the identifier set and data item and
// validates every returned chunk: the head line must match the
// documented grammar and the declared byte count must equal the
// received body length. Any mismatch aborts the whole batch with an
// IntegrityError.
func (mb *Mailbox) Fetch(set, what string) ([]FetchItem, error) {
	s, err := mb.live()
	if err != nil {
		return nil, err
	}
	chunks, err := s.Fetch(set, what)
	if err != nil {
		return nil, err
	}

	items := make([]FetchItem, 0, len(chunks))
	for _, c := range chunks {
		uid, _, size, err := parseMessageHead(c.Head)
		if err != nil {
			return nil, err
		}
		if size != len(c.Body) {
			return nil, &IntegrityError{
				Line:   c.Head,
				Reason: fmt.Sprintf("declared %d bytes, received %d", size, len(c.Body)),
			}
		}
		items = append(items, FetchItem{UID: uid, Body: c.Body})
	}
	return items, nil
}

// Get returns the message with the given identifier. Only the headers
// are fetched; the body loads on first access.
func (mb *Mailbox) Get(uid string) (*Message, error) {
	items, err := mb.Fetch(uid, ItemHeader)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("imapbox: no message %s in %s", uid, mb.folder)
	}
	return newMessage(mb, items[0].UID, items[0].Body), nil
}

// Values iterates over every message in the selected folder as
// headers-only views. The sequence is lazy and restartable: each
// iteration re-runs the search and fetches headers one message at a
// time.
func (mb *Mailbox) Values() iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		keys, err := mb.Keys()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, uid := range keys {
			msg, err := mb.Get(uid)
			if !yield(msg, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Items returns every message in the selected folder paired with its
// identifier. Unlike Values, the bodies are fetched eagerly in a single
// bulk fetch, which is far cheaper than one round trip per message.
func (mb *Mailbox) Items() ([]Item, error) {
	keys, err := mb.Keys()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	fetched, err := mb.Fetch(keys.String(), ItemFull)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(fetched))
	for _, f := range fetched {
		items = append(items, Item{UID: f.UID, Message: newMessageFull(mb, f.UID, f.Body)})
	}
	return items, nil
}

// Add appends a serialized message to the named folder, stamped with
// the current time as its internal date.
func (mb *Mailbox) Add(message []byte, folder string) error {
	s, err := mb.live()
	if err != nil {
		return err
	}
	return s.Append(folder, nil, mb.timeNow(), message)
}

// Copy copies the identifier set to another folder server-side.
func (mb *Mailbox) Copy(set, folder string) error {
	s, err := mb.live()
	if err != nil {
		return err
	}
	return s.Copy(set, folder)
}

// Discard flags the identifier set deleted without expunging. The
// messages stay visible until an expunge.
func (mb *Mailbox) Discard(set string) error {
	s, err := mb.live()
	if err != nil {
		return err
	}
	return s.Store(set, "+FLAGS", `\Deleted`)
}

// Remove flags the identifier set deleted and expunges, permanently
// removing the messages. Identifiers held by the caller are invalid
// afterwards.
func (mb *Mailbox) Remove(set string) error {
	if err := mb.Discard(set); err != nil {
		return err
	}
	return mb.session.Expunge()
}

// Delete always fails with ErrUseDiscard.
func (mb *Mailbox) Delete(uid string) error {
	return ErrUseDiscard
}

// ListFolders iterates over the server's folder list lazily.
func (mb *Mailbox) ListFolders() iter.Seq2[Folder, error] {
	return func(yield func(Folder, error) bool) {
		s, err := mb.live()
		if err != nil {
			yield(Folder{}, err)
			return
		}
		lines, err := s.List()
		if err != nil {
			yield(Folder{}, err)
			return
		}
		for _, line := range lines {
			f, err := parseFolderLine(line)
			if !yield(f, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Select switches the selected folder. Identifiers obtained under the
// previous selection no longer apply.
func (mb *Mailbox) Select(folder string) error {
	s, err := mb.live()
	if err != nil {
		return err
	}
	if err := s.Select(folder); err != nil {
		return err
	}
	mb.folder = folder
	return nil
}

// CurrentFolder returns the selected folder.
func (mb *Mailbox) CurrentFolder() string {
	return mb.folder
}

// Capability returns the server capability string.
func (mb *Mailbox) Capability() (string, error) {
	s, err := mb.live()
	if err != nil {
		return "", err
	}
	return s.Capability()
}
