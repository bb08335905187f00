package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/packsync/internal/syncerr"
)

const index = `{
  "formatVersion": 1,
  "game": "minecraft",
  "versionId": "1.5.0",
  "name": "The Pack",
  "dependencies": {"minecraft": "1.20.1", "forge": "47.2.0"},
  "files": [
    {
      "path": "mods/sodium-0.5.3.jar",
      "hashes": {"sha1": "aa", "sha512": "ABC123"},
      "downloads": ["https://cdn.example/sodium-0.5.3.jar", "https://mirror.example/sodium-0.5.3.jar"],
      "fileSize": 1024
    },
    {
      "path": "mods/nohash.jar",
      "hashes": {"sha1": "bb"},
      "downloads": ["https://cdn.example/nohash.jar"]
    },
    {
      "path": "config/sodium.toml",
      "hashes": {"sha512": "def"},
      "downloads": ["https://cdn.example/sodium.toml"]
    },
    {
      "path": "mods/no-downloads.jar",
      "hashes": {"sha512": "eee"}
    },
    {
      "path": "mods/server-only.jar",
      "hashes": {"sha512": "fff"},
      "downloads": ["https://cdn.example/server-only.jar"],
      "env": {"client": "unsupported", "server": "required"}
    },
    {
      "path": "client/mods/deep.jar",
      "hashes": {"sha512": "999"},
      "downloads": ["https://cdn.example/deep.jar"]
    },
    {
      "path": "resourcepacks/mods.zip",
      "hashes": {"sha512": "888"},
      "downloads": ["https://cdn.example/mods.zip"]
    }
  ]
}`

func names(p *Parsed) []string {
	out := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e.Name())
	}
	return out
}

func TestParse_HashAware(t *testing.T) {
	p, err := Parse([]byte(index), HashAware)
	require.NoError(t, err)

	assert.Equal(t, "1.5.0", p.VersionID)
	assert.Equal(t, "The Pack", p.Name)
	assert.Equal(t, []string{"sodium-0.5.3.jar", "server-only.jar", "deep.jar"}, names(p))

	sodium := p.Entries[0]
	assert.Equal(t, "https://cdn.example/sodium-0.5.3.jar", sodium.SourceURL(), "first download wins")
	assert.Equal(t, "abc123", sodium.Hash())

	// nohash and no-downloads are dropped
	assert.Equal(t, 2, p.Skipped)
}

func TestParse_HashBlind(t *testing.T) {
	p, err := Parse([]byte(index), HashBlind)
	require.NoError(t, err)

	assert.Equal(t, []string{"sodium-0.5.3.jar", "nohash.jar", "server-only.jar", "deep.jar"}, names(p))
	for _, e := range p.Entries {
		assert.Empty(t, e.Hash(), "hash-blind entries carry no hash: %s", e.Name())
	}
}

func TestParse_KeepsServerOnlyDescriptors(t *testing.T) {
	doc := `{"versionId": "2.0", "files": [
		{"path": "mods/server.jar", "hashes": {"sha512": "aaa"}, "downloads": ["https://cdn.example/server.jar"],
		 "env": {"client": "unsupported", "server": "required"}}
	]}`

	for _, mode := range []Mode{HashAware, HashBlind} {
		p, err := Parse([]byte(doc), mode)
		require.NoError(t, err)
		assert.Equal(t, []string{"server.jar"}, names(p), "mode %d", mode)
		assert.Zero(t, p.Skipped, "mode %d", mode)
	}
}

func TestParse_MissingDownloadsSkipsOnlyThatDescriptor(t *testing.T) {
	doc := `{"versionId": "2.0", "files": [
		{"path": "mods/broken.jar", "hashes": {"sha512": "aaa"}},
		{"path": "mods/fine.jar", "hashes": {"sha512": "bbb"}, "downloads": ["https://cdn.example/fine.jar"]}
	]}`

	p, err := Parse([]byte(doc), HashAware)
	require.NoError(t, err)
	assert.Equal(t, []string{"fine.jar"}, names(p))
	assert.Equal(t, 1, p.Skipped)
}

func TestParse_BadDescriptorShapes(t *testing.T) {
	doc := `{"versionId": "2.0", "files": [
		42,
		{"path": 7, "downloads": ["x"]},
		{"downloads": ["https://cdn.example/nopath.jar"], "hashes": {"sha512": "a"}},
		{"path": "mods/", "downloads": ["https://cdn.example/dir"], "hashes": {"sha512": "b"}},
		{"path": "mods/empty-url.jar", "downloads": [""], "hashes": {"sha512": "c"}},
		{"path": "mods/ok.jar", "downloads": ["https://cdn.example/ok.jar"], "hashes": {"sha512": "d"}}
	]}`

	p, err := Parse([]byte(doc), HashAware)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.jar"}, names(p))
	assert.Equal(t, 5, p.Skipped)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: "this is not json"},
		{name: "truncated", doc: `{"files": [`},
		{name: "missing files", doc: `{"versionId": "1.0"}`},
		{name: "null files", doc: `{"files": null}`},
		{name: "files not a list", doc: `{"files": {"path": "mods/a.jar"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), HashAware)
			require.Error(t, err)
			assert.True(t, errors.Is(err, syncerr.ErrMalformedManifest))
		})
	}
}

func TestParse_EmptyFilesList(t *testing.T) {
	p, err := Parse([]byte(`{"versionId": "1.0", "files": []}`), HashAware)
	require.NoError(t, err)
	assert.Empty(t, p.Entries)
}

func TestInModsDir(t *testing.T) {
	assert.True(t, inModsDir("mods/a.jar"))
	assert.True(t, inModsDir("overrides/mods/sub/a.jar"))
	assert.True(t, inModsDir(`mods\a.jar`))
	assert.False(t, inModsDir("mods"))
	assert.False(t, inModsDir("shadermods/a.jar"))
	assert.False(t, inModsDir("config/mods.toml"))
}
