// Package diff decides which installed files to delete and which declared
// files to download.
//
// Matching is set-based rather than name-paired. A local file is kept when its
// name is declared and its content matches some declared file; a declared
// file is downloaded when no local file has its content. A renamed but
// byte-identical file therefore does not trigger a download, while a
// byte-different file under a declared name is replaced.
package diff

import (
	"github.com/schaermu/packsync/internal/content"
)

// Result is the outcome of Compute
type Result struct {
	// WipeAll asks the caller to remove the whole content directory instead of
	// deleting individual files. Delete is empty when it is set.
	WipeAll  bool
	Delete   content.Inventory
	Download content.Inventory
	// Keep lists local entries left untouched.
	Keep content.Inventory
}

// Compute compares the local inventory against the declared one. It has no
// side effects; outputs are sorted by name.
func Compute(local, declared content.Inventory, force bool) Result {
	if force {
		return Result{
			WipeAll:  true,
			Delete:   content.Inventory{},
			Download: declared.Sorted(),
			Keep:     content.Inventory{},
		}
	}

	declaredNames := declared.Names()
	declaredHashes := declared.Hashes()
	localHashes := local.Hashes()

	res := Result{
		Delete:   content.Inventory{},
		Download: content.Inventory{},
		Keep:     content.Inventory{},
	}

	for _, e := range local {
		_, nameKnown := declaredNames[e.Name()]
		_, hashKnown := declaredHashes[e.Hash()]
		if !nameKnown || !hashKnown || e.Hash() == "" {
			res.Delete = append(res.Delete, e)
			continue
		}
		res.Keep = append(res.Keep, e)
	}

	for _, e := range declared {
		if _, ok := localHashes[e.Hash()]; !ok || e.Hash() == "" {
			res.Download = append(res.Download, e)
		}
	}

	res.Delete = res.Delete.Sorted()
	res.Download = res.Download.Sorted()
	res.Keep = res.Keep.Sorted()
	return res
}

// Empty reports whether applying r changes nothing
func (r Result) Empty() bool {
	return !r.WipeAll && len(r.Delete) == 0 && len(r.Download) == 0
}
