// Package manifest decodes the pack index shipped inside a release payload.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/schaermu/packsync/internal/content"
	"github.com/schaermu/packsync/internal/syncerr"
)

// Mode selects how declared hashes are treated
type Mode int

const (
	// HashAware drops descriptors without a sha512 hash
	HashAware Mode = iota
	// HashBlind keeps every descriptor and leaves hashes empty
	HashBlind
)

const hashAlgorithm = "sha512"

// Document is the subset of the index format packsync reads
type Document struct {
	FormatVersion int          `json:"formatVersion"`
	Game          string       `json:"game"`
	VersionID     string       `json:"versionId"`
	Name          string       `json:"name"`
	Files         []Descriptor `json:"files"`
}

// Descriptor declares one file of the pack
type Descriptor struct {
	Path      string            `json:"path"`
	Downloads []string          `json:"downloads"`
	Hashes    map[string]string `json:"hashes"`
	Env       *Env              `json:"env,omitempty"`
	FileSize  int64             `json:"fileSize"`
}

// Env carries per-side requirements
type Env struct {
	Client string `json:"client"`
	Server string `json:"server"`
}

// Parsed is the result of Parse
type Parsed struct {
	VersionID string
	Name      string
	Entries   content.Inventory
	// Skipped counts descriptors dropped as malformed or unverifiable.
	Skipped int
}

// Decode parses the raw document. It fails only when the document as a whole
// is unusable.
func Decode(data []byte) (*Document, error) {
	var raw struct {
		Document
		Files json.RawMessage `json:"files"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, syncerr.MalformedManifest("decode index", err)
	}

	trimmed := bytes.TrimSpace(raw.Files)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, syncerr.MalformedManifest("decode index", fmt.Errorf("missing files list"))
	}

	// Decode descriptors one by one so a single bad element is skippable
	var elems []json.RawMessage
	if err := json.Unmarshal(raw.Files, &elems); err != nil {
		return nil, syncerr.MalformedManifest("decode files", err)
	}

	doc := raw.Document
	doc.Files = make([]Descriptor, 0, len(elems))
	for _, elem := range elems {
		var d Descriptor
		if err := json.Unmarshal(elem, &d); err != nil {
			// Leave a zero descriptor so Parse counts it as malformed
			d = Descriptor{}
		}
		doc.Files = append(doc.Files, d)
	}

	return &doc, nil
}

// Parse decodes data and returns the declared mod entries.
func Parse(data []byte, mode Mode) (*Parsed, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return doc.Entries(mode), nil
}

// Entries selects the descriptors that live under a mods directory
func (d *Document) Entries(mode Mode) *Parsed {
	out := &Parsed{
		VersionID: d.VersionID,
		Name:      d.Name,
		Entries:   make(content.Inventory, 0, len(d.Files)),
	}

	for _, f := range d.Files {
		entry, ok := f.entry(mode)
		if !ok {
			if f.Path == "" || inModsDir(f.Path) {
				out.Skipped++
			}
			continue
		}
		out.Entries = append(out.Entries, entry)
	}

	return out
}

func (f Descriptor) entry(mode Mode) (content.Entry, bool) {
	if f.Path == "" || strings.HasSuffix(f.Path, "/") || !inModsDir(f.Path) {
		return content.Entry{}, false
	}
	if len(f.Downloads) == 0 || strings.TrimSpace(f.Downloads[0]) == "" {
		return content.Entry{}, false
	}

	var hash string
	if mode == HashAware {
		hash = f.Hashes[hashAlgorithm]
		if hash == "" {
			return content.Entry{}, false
		}
	}

	entry, err := content.NewEntry(path.Base(f.Path), f.Downloads[0], hash)
	if err != nil {
		return content.Entry{}, false
	}
	return entry, true
}

// inModsDir reports whether any directory segment of p is "mods".
func inModsDir(p string) bool {
	segments := strings.Split(strings.ReplaceAll(p, `\`, "/"), "/")
	for _, s := range segments[:len(segments)-1] {
		if s == "mods" {
			return true
		}
	}
	return false
}
