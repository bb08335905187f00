package diff

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/packsync/internal/content"
)

func local(t *testing.T, pairs ...string) content.Inventory {
	t.Helper()
	inv := content.Inventory{}
	for i := 0; i < len(pairs); i += 2 {
		e, err := content.NewEntry(pairs[i], "", pairs[i+1])
		require.NoError(t, err)
		inv = append(inv, e)
	}
	return inv
}

func declared(t *testing.T, pairs ...string) content.Inventory {
	t.Helper()
	inv := content.Inventory{}
	for i := 0; i < len(pairs); i += 2 {
		e, err := content.NewEntry(pairs[i], "https://cdn.example/"+pairs[i], pairs[i+1])
		require.NoError(t, err)
		inv = append(inv, e)
	}
	return inv
}

func names(inv content.Inventory) []string {
	out := make([]string, 0, len(inv))
	for _, e := range inv {
		out = append(out, e.Name())
	}
	return out
}

func TestCompute_Scenario(t *testing.T) {
	l := local(t, "A.jar", "hash1", "B.jar", "hash2")
	d := declared(t, "A.jar", "hash1", "C.jar", "hash3")

	res := Compute(l, d, false)

	assert.False(t, res.WipeAll)
	assert.Equal(t, []string{"B.jar"}, names(res.Delete))
	assert.Equal(t, []string{"C.jar"}, names(res.Download))
	assert.Equal(t, []string{"A.jar"}, names(res.Keep))
	assert.Equal(t, "https://cdn.example/C.jar", res.Download[0].SourceURL())
}

func TestCompute_DisjointHashes(t *testing.T) {
	l := local(t, "a.jar", "1", "b.jar", "2", "same-name.jar", "3")
	d := declared(t, "same-name.jar", "4", "d.jar", "5")

	res := Compute(l, d, false)

	assert.Equal(t, l.Sorted(), res.Delete, "every local entry is deleted")
	assert.Equal(t, d.Sorted(), res.Download, "every declared entry is downloaded")
	assert.Empty(t, res.Keep)
}

func TestCompute_Identical(t *testing.T) {
	l := local(t, "a.jar", "1", "b.jar", "2")
	d := declared(t, "b.jar", "2", "a.jar", "1")

	res := Compute(l, d, false)

	assert.Empty(t, res.Delete)
	assert.Empty(t, res.Download)
	assert.True(t, res.Empty())
}

func TestCompute_Idempotent(t *testing.T) {
	l := local(t, "a.jar", "1", "b.jar", "2", "x.jar", "9")
	d := declared(t, "a.jar", "1", "c.jar", "3")

	first := Compute(l, d, false)
	second := Compute(l, d, false)
	assert.Equal(t, first, second)

	// Inputs are not mutated
	assert.Equal(t, "x.jar", l[2].Name())
	assert.Len(t, d, 2)
}

func TestCompute_RenamedIdenticalFileIsTolerated(t *testing.T) {
	// The user renamed a declared file; its content is still present under another name.
	l := local(t, "a.jar", "1", "renamed.jar", "2")
	d := declared(t, "a.jar", "1", "b.jar", "2")

	res := Compute(l, d, false)

	assert.Equal(t, []string{"renamed.jar"}, names(res.Delete), "the name is not declared")
	assert.Empty(t, res.Download, "content 2 already exists locally")
}

func TestCompute_AlteredContentUnderDeclaredName(t *testing.T) {
	l := local(t, "a.jar", "corrupt")
	d := declared(t, "a.jar", "1")

	res := Compute(l, d, false)

	assert.Equal(t, []string{"a.jar"}, names(res.Delete))
	assert.Equal(t, []string{"a.jar"}, names(res.Download))
}

func TestCompute_DeclaredWithoutHashIsDownloaded(t *testing.T) {
	l := local(t, "a.jar", "1")
	d := declared(t, "a.jar", "")

	res := Compute(l, d, false)

	assert.Equal(t, []string{"a.jar"}, names(res.Download))
	assert.Equal(t, []string{"a.jar"}, names(res.Delete), "local hash cannot match an empty declared set")
}

func TestCompute_Force(t *testing.T) {
	l := local(t, "a.jar", "1", "b.jar", "2")
	d := declared(t, "a.jar", "", "c.jar", "")

	res := Compute(l, d, true)

	assert.True(t, res.WipeAll)
	assert.Empty(t, res.Delete, "deletion is the whole directory, not itemized")
	assert.Equal(t, []string{"a.jar", "c.jar"}, names(res.Download))
	assert.False(t, res.Empty())
}

func TestCompute_ManyEntries(t *testing.T) {
	var lp, dp []string
	for i := 0; i < 1000; i++ {
		lp = append(lp, fmt.Sprintf("mod-%04d.jar", i), fmt.Sprintf("h%d", i))
		if i%2 == 0 {
			dp = append(dp, fmt.Sprintf("mod-%04d.jar", i), fmt.Sprintf("h%d", i))
		}
	}
	dp = append(dp, "new.jar", "fresh")

	res := Compute(local(t, lp...), declared(t, dp...), false)

	assert.Len(t, res.Delete, 500)
	assert.Len(t, res.Keep, 500)
	assert.Equal(t, []string{"new.jar"}, names(res.Download))
}
