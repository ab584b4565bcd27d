package imapbox

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/xid"
)

// fetchLineRE matches the head line of one FETCH message block
var fetchLineRE = regexp.MustCompile(`^\* (\d+) FETCH (.*)$`)

// Select selects a folder for read-write access
func (d *Dialer) Select(folder string) (err error) {
	_, err = d.Exec(`SELECT "`+AddSlashes.Replace(folder)+`"`, true, RetryCount, nil)
	if err != nil {
		return err
	}
	d.Folder = folder
	d.ReadOnly = false
	return nil
}

// Examine selects a folder read-only
func (d *Dialer) Examine(folder string) (err error) {
	_, err = d.Exec(`EXAMINE "`+AddSlashes.Replace(folder)+`"`, true, RetryCount, nil)
	if err != nil {
		return err
	}
	d.Folder = folder
	d.ReadOnly = true
	return nil
}

// Search runs SEARCH with the given criteria and returns the identifier
// text of the untagged SEARCH response, e.g. "1 2 3". An empty result
// returns "".
func (d *Dialer) Search(criteria string) (string, error) {
	var parts []string
	seen := false
	_, err := d.Exec("SEARCH "+criteria, false, RetryCount, func(line []byte) error {
		line = dropNl(line)
		if !bytes.HasPrefix(line, []byte("* SEARCH")) {
			return nil
		}
		seen = true
		if rest := strings.TrimSpace(string(line[len("* SEARCH"):])); rest != "" {
			parts = append(parts, rest)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !seen {
		return "", fmt.Errorf("imap search: missing SEARCH response")
	}
	return strings.Join(parts, " "), nil
}

// Fetch runs FETCH for the given identifier set and data items and
// returns one chunk per message block. The head keeps the exact text
// the server sent after the sequence number, so declared literal sizes
// stay visible to the caller; the literal bytes follow unmodified.
// Untagged responses other than FETCH are dropped.
func (d *Dialer) Fetch(set, items string) ([]FetchChunk, error) {
	var chunks []FetchChunk
	_, err := d.Exec("FETCH "+set+" ("+items+")", false, RetryCount, func(line []byte) error {
		var head, body []byte
		if i := bytes.IndexByte(line, '\n'); i != -1 && i != len(line)-1 {
			head = dropNl(line[: i+1 : i+1])
			body = line[i+1:]
		} else {
			head = dropNl(line)
		}

		m := fetchLineRE.FindSubmatch(head)
		if m == nil {
			return nil
		}

		if body != nil {
			// drop the closing parenthesis line that trails the literal
			switch {
			case bytes.HasSuffix(body, []byte(")\r\n")):
				body = body[:len(body)-3]
			case bytes.HasSuffix(body, []byte(")\n")):
				body = body[:len(body)-2]
			case bytes.HasSuffix(body, []byte(")")):
				body = body[:len(body)-1]
			}
			body = bytes.Clone(body)
		}

		chunks = append(chunks, FetchChunk{
			Head: string(m[1]) + " " + string(m[2]),
			Body: body,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// Append adds a message to the named folder with the given flags and
// internal date. APPEND carries the message as a literal, which needs a
// continuation round trip, so it writes to the connection directly
// instead of going through Exec.
func (d *Dialer) Append(folder string, flags []string, date time.Time, message []byte) error {
	tag := strings.ToUpper(xid.New().String())

	if CommandTimeout != 0 {
		_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
		defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
	}

	c := fmt.Sprintf(`%s APPEND "%s" (%s) "%s" {%d}%s`,
		tag, AddSlashes.Replace(folder), strings.Join(flags, " "),
		date.Format(TimeFormat), len(message), nl)

	if Verbose {
		debugLog(d.ConnNum, d.Folder, "sending command", "command", strings.TrimSpace(c))
	}

	if _, err := d.conn.Write([]byte(c)); err != nil {
		return err
	}

	r := bufio.NewReader(d.conn)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return err
		}
		if Verbose && !SkipResponses {
			debugLog(d.ConnNum, d.Folder, "server response", "response", string(dropNl(line)))
		}
		if len(line) > 0 && line[0] == '+' {
			break
		}
		if bytes.HasPrefix(line, []byte(tag)) {
			return fmt.Errorf("imap append failed: %s", dropNl(line)[len(tag)+1:])
		}
	}

	if _, err := d.conn.Write(message); err != nil {
		return err
	}
	if _, err := d.conn.Write([]byte(nl)); err != nil {
		return err
	}

	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return err
		}
		if Verbose && !SkipResponses {
			debugLog(d.ConnNum, d.Folder, "server response", "response", string(dropNl(line)))
		}
		if bytes.HasPrefix(line, []byte(tag)) {
			rest := dropNl(line)[len(tag)+1:]
			if !bytes.HasPrefix(rest, []byte("OK")) {
				return fmt.Errorf("imap append failed: %s", rest)
			}
			return nil
		}
	}
}

// Store applies a flag action to the given identifier set,
// e.g. Store("1,2", "+FLAGS", `\Deleted`)
func (d *Dialer) Store(set, action, flags string) (err error) {
	_, err = d.Exec(fmt.Sprintf("STORE %s %s (%s)", set, action, flags), false, RetryCount, nil)
	return err
}

// Copy copies the given identifier set to another folder
func (d *Dialer) Copy(set, folder string) (err error) {
	_, err = d.Exec(fmt.Sprintf(`COPY %s "%s"`, set, AddSlashes.Replace(folder)), false, RetryCount, nil)
	return err
}

// Expunge permanently removes messages flagged deleted in the current folder
func (d *Dialer) Expunge() (err error) {
	_, err = d.Exec("EXPUNGE", false, RetryCount, nil)
	return err
}

// List returns the raw folder lines of LIST "" "*", with the leading
// "* LIST " stripped
func (d *Dialer) List() ([]string, error) {
	lines := make([]string, 0)
	_, err := d.Exec(`LIST "" "*"`, false, RetryCount, func(line []byte) error {
		line = dropNl(line)
		if !bytes.HasPrefix(line, []byte("* LIST ")) {
			return nil
		}
		lines = append(lines, string(line[len("* LIST "):]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// Capability returns the server capability string
func (d *Dialer) Capability() (string, error) {
	caps := ""
	_, err := d.Exec("CAPABILITY", false, RetryCount, func(line []byte) error {
		line = dropNl(line)
		if bytes.HasPrefix(line, []byte("* CAPABILITY ")) {
			caps = string(line[len("* CAPABILITY "):])
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return caps, nil
}

// Logout ends the session and closes the connection. The server answers
// with an untagged BYE before the tagged OK; no retry, since
// reconnecting only to log out again is pointless.
func (d *Dialer) Logout() error {
	_, err := d.Exec("LOGOUT", false, 0, nil)
	if cerr := d.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
