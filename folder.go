package imapbox

// Folder describes one entry of the server's folder list.
type Folder struct {
	// Flags holds name attributes such as \HasNoChildren or \Noselect.
	Flags []string
	// Delimiter is the hierarchy delimiter, a single character.
	Delimiter string
	// Path is the full folder path, e.g. "INBOX/Sent".
	Path string
	// Name is the display name: the last Path segment.
	Name string
}

// HasFlag reports whether the folder carries the given name attribute.
func (f Folder) HasFlag(flag string) bool {
	for _, v := range f.Flags {
		if v == flag {
			return true
		}
	}
	return false
}
