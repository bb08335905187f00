package content

import (
	"fmt"
	"sort"
	"strings"
)

// Entry is a single pack file, either found on disk or declared by a manifest.
// Entries are matched by base name only, so a name never contains a path
// separator. The zero value is not a valid entry; use NewEntry.
type Entry struct {
	name      string
	sourceURL string
	hash      string
}

// NewEntry validates name and returns an immutable entry. url and hash may be
// empty when absent.
func NewEntry(name, url, hash string) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	return Entry{name: name, sourceURL: url, hash: strings.ToLower(hash)}, nil
}

// ValidateName rejects names that are not a plain file name
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("entry name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("entry name %q is not a file name", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("entry name %q contains a path separator", name)
	}
	return nil
}

// Name returns the file's base name
func (e Entry) Name() string { return e.name }

// SourceURL returns the download URL, empty for local entries
func (e Entry) SourceURL() string { return e.sourceURL }

// Hash returns the lowercase hex digest, empty when unknown
func (e Entry) Hash() string { return e.hash }

func (e Entry) String() string {
	if e.hash == "" {
		return e.name
	}
	short := e.hash
	if len(short) > 12 {
		short = short[:12]
	}
	return e.name + "@" + short
}

// Inventory is an unordered collection of entries
type Inventory []Entry

// Names returns the set of entry names
func (inv Inventory) Names() map[string]struct{} {
	set := make(map[string]struct{}, len(inv))
	for _, e := range inv {
		set[e.name] = struct{}{}
	}
	return set
}

// Hashes returns the set of known hashes; entries without a hash contribute nothing.
func (inv Inventory) Hashes() map[string]struct{} {
	set := make(map[string]struct{}, len(inv))
	for _, e := range inv {
		if e.hash != "" {
			set[e.hash] = struct{}{}
		}
	}
	return set
}

// Sorted returns a copy ordered by name, then hash
func (inv Inventory) Sorted() Inventory {
	out := make(Inventory, len(inv))
	copy(out, inv)
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].hash < out[j].hash
	})
	return out
}
