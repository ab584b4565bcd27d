package imapbox

import (
	"strings"
	"testing"
)

func TestDecodeHeader(t *testing.T) {
	for _, tt := range []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain",
			raw:  "nothing encoded here",
			want: "nothing encoded here",
		},
		{
			name: "mixed charsets in one header",
			raw:  "=?ISO-8859-1?Q?Caf=E9?= =?UTF-8?B?IG5haXZl?=",
			want: "Café naive",
		},
		{
			name: "koi8-r",
			raw:  "=?KOI8-R?B?0NLJ18XU?=",
			want: "привет",
		},
		{
			name: "windows alias",
			raw:  "=?windows-1252?Q?smart_=93quotes=94?=",
			want: "smart “quotes”",
		},
		{
			name: "unknown charset decodes permissively",
			raw:  "=?unknown-8bit?Q?plain_ascii?=",
			want: "plain ascii",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeHeader(tt.raw); got != tt.want {
				t.Errorf("decodeHeader(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeHeaderUnknownCharsetRawBytes(t *testing.T) {
	// Invalid UTF-8 under an unresolvable charset comes back with
	// replacement runes instead of failing the header.
	got := decodeHeader("=?unknown-8bit?Q?abc=FFdef?=")
	if strings.Contains(got, "\xff") {
		t.Errorf("decodeHeader kept invalid bytes: %q", got)
	}
	if !strings.HasPrefix(got, "abc") || !strings.HasSuffix(got, "def") {
		t.Errorf("decodeHeader(%q) = %q", "=?unknown-8bit?Q?abc=FFdef?=", got)
	}
}

func TestMessageHeaderAccess(t *testing.T) {
	raw := []byte("From: =?UTF-8?Q?Andr=C3=A9?= <andre@example.com>\r\n" +
		"Subject: =?ISO-8859-1?Q?r=E9sum=E9?=\r\n" +
		"X-Custom: some value\r\n\r\n")
	msg := newMessage(nil, "7", raw)

	if got := msg.Subject(); got != "résumé" {
		t.Errorf("Subject() = %q", got)
	}
	if got := msg.From(); got != "André <andre@example.com>" {
		t.Errorf("From() = %q", got)
	}
	if got := msg.Header("X-Custom"); got != "some value" {
		t.Errorf("Header(X-Custom) = %q", got)
	}
	if got := msg.Header("X-Missing"); got != "" {
		t.Errorf("Header(X-Missing) = %q, want empty", got)
	}
}

func TestParseHeaderWithoutBlankLine(t *testing.T) {
	// Header-only fetches may arrive without the terminating blank line.
	h := parseHeader([]byte("Subject: truncated\r\nFrom: a@example.com\r\n"))
	if got := h.Get("Subject"); got != "truncated" {
		t.Errorf("Subject = %q", got)
	}
}

func TestMessageDetachedBodyLoad(t *testing.T) {
	msg := newMessage(nil, "1", []byte("Subject: hi\r\n\r\n"))
	if _, err := msg.Bytes(); err != ErrNotConnected {
		t.Errorf("Bytes on detached message: error = %v, want ErrNotConnected", err)
	}
}

func TestMessageTextAndHTML(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"Subject: multipart\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"b1\"\r\n\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" +
		"plain words\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		"<p>rich words</p>\r\n" +
		"--b1--\r\n")
	msg := newMessageFull(nil, "3", raw)

	text, err := msg.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if strings.TrimSpace(text) != "plain words" {
		t.Errorf("Text() = %q", text)
	}

	html, err := msg.HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if !strings.Contains(html, "rich words") {
		t.Errorf("HTML() = %q", html)
	}
}

func TestMessageAttachments(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"Subject: with attachment\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"b2\"\r\n\r\n" +
		"--b2\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" +
		"see attached\r\n" +
		"--b2\r\n" +
		"Content-Type: text/csv\r\n" +
		"Content-Disposition: attachment; filename=\"report.csv\"\r\n\r\n" +
		"a,b\r\n1,2\r\n" +
		"--b2--\r\n")
	msg := newMessageFull(nil, "4", raw)

	atts, err := msg.Attachments()
	if err != nil {
		t.Fatalf("Attachments: %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("len(atts) = %d, want 1", len(atts))
	}
	if atts[0].Name != "report.csv" {
		t.Errorf("Name = %q", atts[0].Name)
	}
	if !strings.Contains(string(atts[0].Content), "a,b") {
		t.Errorf("Content = %q", atts[0].Content)
	}
	if s := atts[0].String(); !strings.Contains(s, "report.csv") {
		t.Errorf("String() = %q", s)
	}
}

func TestMessageString(t *testing.T) {
	msg := newMessage(nil, "9", []byte("Subject: status\r\n\r\n"))
	s := msg.String()
	if !strings.Contains(s, "Message 9") || !strings.Contains(s, "status") {
		t.Errorf("String() = %q", s)
	}
	if !strings.Contains(s, "not loaded") {
		t.Errorf("String() = %q, want body not loaded marker", s)
	}
}
