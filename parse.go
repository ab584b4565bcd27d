package imapbox

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Response grammars parsed by the facade. These must match the server
// text bit-for-bit; anything else is an integrity error.
//
//	fetch head:  <uid> (<data-item> {<byte-count>}
//	folder line: (<space-separated-flags>) "<delimiter>" "<path>"
var (
	messageHeadRE = regexp.MustCompile(`^(\d+) \((\S+) {(\d+)}$`)
	folderLineRE  = regexp.MustCompile(`^\(([^)]+)\) "([^"]+)" "([^"]+)"$`)
)

// IntegrityError reports a server response that violates the expected
// protocol grammar, including a fetch body whose length disagrees with
// the declared byte count. It is fatal and never retried.
type IntegrityError struct {
	Line   string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("imapbox: integrity error: %s: %q", e.Reason, e.Line)
}

// parseMessageHead parses one fetch head line into the message
// identifier, the data-item name, and the declared literal size.
func parseMessageHead(head string) (uid, item string, size int, err error) {
	m := messageHeadRE.FindStringSubmatch(head)
	if m == nil {
		return "", "", 0, &IntegrityError{Line: head, Reason: "malformed fetch head line"}
	}
	size, err = strconv.Atoi(m[3])
	if err != nil {
		// unreachable given the grammar, but don't trust it
		return "", "", 0, &IntegrityError{Line: head, Reason: "bad byte count"}
	}
	return m[1], m[2], size, nil
}

// parseFolderLine parses one LIST response line into a Folder. The
// display name is the last delimiter-separated path segment.
func parseFolderLine(line string) (Folder, error) {
	m := folderLineRE.FindStringSubmatch(line)
	if m == nil {
		return Folder{}, &IntegrityError{Line: line, Reason: "malformed folder line"}
	}
	flags, delimiter, path := m[1], m[2], m[3]
	segments := strings.Split(path, delimiter)
	return Folder{
		Flags:     strings.Fields(flags),
		Delimiter: delimiter,
		Path:      path,
		Name:      segments[len(segments)-1],
	}, nil
}
