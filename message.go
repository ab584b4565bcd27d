package imapbox

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"

	"github.com/davecgh/go-spew/spew"
	humanize "github.com/dustin/go-humanize"
	"github.com/jhillyerd/enmime/v2"
	"golang.org/x/net/html/charset"
)

// Message is a lazily loaded message handle, valid for the folder
// selection it was fetched under. Headers are available immediately;
// the first access to the full content issues one more fetch and caches
// the result. A Message goes stale if the identifier is expunged
// server-side.
type Message struct {
	UID string

	mb         *Mailbox
	header     mail.Header
	body       []byte
	bodyLoaded bool
	envelope   *enmime.Envelope
}

// Attachment is a message attachment or inline part.
type Attachment struct {
	Name     string
	MimeType string
	Content  []byte
}

func (a Attachment) String() string {
	return fmt.Sprintf("%s (%s %s)", a.Name, a.MimeType, humanize.Bytes(uint64(len(a.Content))))
}

// newMessage builds a headers-only message view.
func newMessage(mb *Mailbox, uid string, rawHeader []byte) *Message {
	return &Message{UID: uid, mb: mb, header: parseHeader(rawHeader)}
}

// newMessageFull builds a message whose content is already in hand.
func newMessageFull(mb *Mailbox, uid string, raw []byte) *Message {
	return &Message{UID: uid, mb: mb, header: parseHeader(raw), body: raw, bodyLoaded: true}
}

// parseHeader reads the header block of a message or header-only fetch.
// A missing terminating blank line is tolerated.
func parseHeader(raw []byte) mail.Header {
	buf := raw
	if !bytes.HasSuffix(buf, []byte("\r\n\r\n")) && !bytes.HasSuffix(buf, []byte("\n\n")) {
		buf = append(bytes.Clone(buf), "\r\n"...)
	}
	msg, err := mail.ReadMessage(bytes.NewReader(buf))
	if err != nil {
		return mail.Header{}
	}
	return msg.Header
}

var headerDecoder = mime.WordDecoder{CharsetReader: permissiveCharsetReader}

// permissiveCharsetReader resolves encoded-word charsets through
// x/net/html/charset. Labels it cannot resolve (unknown-8bit and
// friends) decode as raw bytes with replacement runes for invalid
// sequences, so one odd charset never fails a whole header.
func permissiveCharsetReader(label string, input io.Reader) (io.Reader, error) {
	label = strings.ReplaceAll(label, "windows-", "cp")
	if enc, _ := charset.Lookup(label); enc != nil {
		return enc.NewDecoder().Reader(input), nil
	}
	b, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(strings.ToValidUTF8(string(b), "�")), nil
}

// decodeHeader decodes a header value that may mix encoded-word
// segments in several charsets into one string. Undecodable input comes
// back as-is rather than as an error.
func decodeHeader(raw string) string {
	decoded, err := headerDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Header returns the decoded value of a message header, or "" when the
// header is absent.
func (m *Message) Header(name string) string {
	raw := m.header.Get(name)
	if raw == "" {
		return ""
	}
	return decodeHeader(raw)
}

// Subject returns the decoded Subject header.
func (m *Message) Subject() string { return m.Header("Subject") }

// From returns the decoded From header.
func (m *Message) From() string { return m.Header("From") }

// BodyLoaded reports whether the full content has been fetched yet.
func (m *Message) BodyLoaded() bool { return m.bodyLoaded }

// load fetches the full RFC822 content on first use.
func (m *Message) load() error {
	if m.bodyLoaded {
		return nil
	}
	if m.mb == nil {
		return ErrNotConnected
	}
	items, err := m.mb.Fetch(m.UID, ItemFull)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("imapbox: no message %s in %s", m.UID, m.mb.folder)
	}
	m.body = items[0].Body
	m.bodyLoaded = true
	return nil
}

// Bytes returns the full RFC822 content, fetching it on first access
// and reusing the cached copy afterwards.
func (m *Message) Bytes() ([]byte, error) {
	if err := m.load(); err != nil {
		return nil, err
	}
	return m.body, nil
}

// Envelope parses the message content with enmime, loading the body
// first if needed. The parsed envelope is cached.
func (m *Message) Envelope() (*enmime.Envelope, error) {
	if m.envelope != nil {
		return m.envelope, nil
	}
	raw, err := m.Bytes()
	if err != nil {
		return nil, err
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		if Verbose {
			warnLog(-1, "", "message body could not be parsed", "uid", m.UID, "error", err)
			spew.Dump(raw)
		}
		return nil, err
	}
	m.envelope = env
	return env, nil
}

// Text returns the plain text body.
func (m *Message) Text() (string, error) {
	env, err := m.Envelope()
	if err != nil {
		return "", err
	}
	return env.Text, nil
}

// HTML returns the HTML body, if any.
func (m *Message) HTML() (string, error) {
	env, err := m.Envelope()
	if err != nil {
		return "", err
	}
	return env.HTML, nil
}

// Attachments returns attachments and inline parts.
func (m *Message) Attachments() ([]Attachment, error) {
	env, err := m.Envelope()
	if err != nil {
		return nil, err
	}
	out := make([]Attachment, 0, len(env.Attachments)+len(env.Inlines))
	for _, a := range env.Attachments {
		out = append(out, Attachment{Name: a.FileName, MimeType: a.ContentType, Content: a.Content})
	}
	for _, a := range env.Inlines {
		out = append(out, Attachment{Name: a.FileName, MimeType: a.ContentType, Content: a.Content})
	}
	return out, nil
}

func (m *Message) String() string {
	s := strings.Builder{}
	fmt.Fprintf(&s, "Message %s\n", m.UID)
	if subject := m.Subject(); subject != "" {
		fmt.Fprintf(&s, "Subject: %s\n", subject)
	}
	if from := m.From(); from != "" {
		fmt.Fprintf(&s, "From: %s\n", from)
	}
	if m.bodyLoaded {
		fmt.Fprintf(&s, "Body: %s\n", humanize.Bytes(uint64(len(m.body))))
	} else {
		s.WriteString("Body: not loaded\n")
	}
	return s.String()
}
