package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/packsync/internal/syncerr"
	"github.com/schaermu/packsync/internal/testutil"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		member  string
		want    Entry
		matched bool
	}{
		{
			name:    "nested mod",
			member:  "overrides/mods/Foo/bar.jar",
			want:    Entry{Name: "overrides/mods/Foo/bar.jar", Subdir: "mods", RelPath: "Foo/bar.jar"},
			matched: true,
		},
		{
			name:    "shaderpack",
			member:  "overrides/shaderpacks/BSL.zip",
			want:    Entry{Name: "overrides/shaderpacks/BSL.zip", Subdir: "shaderpacks", RelPath: "BSL.zip"},
			matched: true,
		},
		{
			name:    "resourcepack directory",
			member:  "overrides/resourcepacks/Faithful/",
			want:    Entry{Name: "overrides/resourcepacks/Faithful/", Subdir: "resourcepacks", RelPath: "Faithful", IsDir: true},
			matched: true,
		},
		{
			name:    "subdir itself",
			member:  "overrides/mods/",
			want:    Entry{Name: "overrides/mods/", Subdir: "mods", RelPath: "", IsDir: true},
			matched: true,
		},
		{
			name:    "window not at root",
			member:  "pack/overrides/mods/a.jar",
			want:    Entry{Name: "pack/overrides/mods/a.jar", Subdir: "mods", RelPath: "a.jar"},
			matched: true,
		},
		{name: "config override", member: "overrides/config/x.toml"},
		{name: "index", member: "modrinth.index.json"},
		{name: "mods outside overrides", member: "mods/a.jar"},
		{name: "client overrides", member: "client-overrides/mods/a.jar"},
		{
			name:    "colon in file name",
			member:  "overrides/mods/we:ird.jar",
			want:    Entry{Name: "overrides/mods/we:ird.jar", Subdir: "mods", RelPath: "we:ird.jar"},
			matched: true,
		},
		{name: "traversal", member: "overrides/mods/../../evil.jar"},
		{name: "file named like subdir", member: "overrides/mods"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.member)
			assert.Equal(t, tt.matched, ok)
			if tt.matched {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	// Both windows appear; mods is checked first
	got, ok := Classify("overrides/resourcepacks/overrides/mods/a.jar")
	require.True(t, ok)
	assert.Equal(t, "mods", got.Subdir)
	assert.Equal(t, "a.jar", got.RelPath)
}

func TestOpenBundle_FindsPayloadAndIndex(t *testing.T) {
	bundle := testutil.Bundle(t,
		testutil.Member{Name: "modrinth.index.json", Data: `{"files": []}`},
	)

	r := NewResolver(Options{}, testutil.Logger())
	p, err := r.OpenBundle(bundle)
	require.NoError(t, err)
	assert.Equal(t, "The Pack 1.5.mrpack", p.Name)

	index, err := r.ReadIndex(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"files": []}`, string(index))
}

func TestOpenBundle_MissingPayload(t *testing.T) {
	bundle := testutil.Zip(t, testutil.Member{Name: "README.txt", Data: "nothing to install"})

	r := NewResolver(Options{}, testutil.Logger())
	_, err := r.OpenBundle(bundle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerr.ErrMissingPayload))
}

func TestOpenBundle_NotAnArchive(t *testing.T) {
	r := NewResolver(Options{}, testutil.Logger())
	_, err := r.OpenBundle([]byte("definitely not a zip"))
	assert.True(t, errors.Is(err, syncerr.ErrMissingPayload))
}

func TestReadIndex_Missing(t *testing.T) {
	bundle := testutil.Bundle(t, testutil.Member{Name: "overrides/mods/a.jar", Data: "a"})

	r := NewResolver(Options{}, testutil.Logger())
	p, err := r.OpenBundle(bundle)
	require.NoError(t, err)

	_, err = r.ReadIndex(p)
	assert.True(t, errors.Is(err, syncerr.ErrMalformedManifest))
}

func TestExtract(t *testing.T) {
	packDir := t.TempDir()
	bundle := testutil.Bundle(t,
		testutil.Member{Name: "modrinth.index.json", Data: `{"files": []}`},
		testutil.Member{Name: "overrides/mods/"},
		testutil.Member{Name: "overrides/mods/Foo/bar.jar", Data: "bar"},
		testutil.Member{Name: "overrides/mods/top.jar", Data: "top"},
		testutil.Member{Name: "overrides/shaderpacks/BSL.zip", Data: "shader"},
		testutil.Member{Name: "overrides/resourcepacks/Faithful/"},
		testutil.Member{Name: "overrides/config/x.toml", Data: "cfg"},
		testutil.Member{Name: "overrides/mods/../../evil.jar", Data: "evil"},
	)

	r := NewResolver(Options{Workers: 3}, testutil.Logger())
	p, err := r.OpenBundle(bundle)
	require.NoError(t, err)

	report, err := r.Extract(context.Background(), p, packDir)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 2, report.Dirs)
	assert.Equal(t, 3, report.Ignored, "index, config and traversal members")

	data, err := os.ReadFile(filepath.Join(packDir, "mods", "Foo", "bar.jar"))
	require.NoError(t, err)
	assert.Equal(t, "bar", string(data))

	data, err = os.ReadFile(filepath.Join(packDir, "shaderpacks", "BSL.zip"))
	require.NoError(t, err)
	assert.Equal(t, "shader", string(data))

	info, err := os.Stat(filepath.Join(packDir, "resourcepacks", "Faithful"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoFileExists(t, filepath.Join(packDir, "config", "x.toml"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(packDir), "evil.jar"))
	assert.NoFileExists(t, filepath.Join(packDir, "evil.jar"))
}

func TestExtract_OverwritesExistingFile(t *testing.T) {
	packDir := t.TempDir()
	target := filepath.Join(packDir, "mods", "top.jar")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("stale content"), 0644))

	bundle := testutil.Bundle(t, testutil.Member{Name: "overrides/mods/top.jar", Data: "fresh"})

	r := NewResolver(Options{}, testutil.Logger())
	p, err := r.OpenBundle(bundle)
	require.NoError(t, err)

	_, err = r.Extract(context.Background(), p, packDir)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestExtract_FailureIsolatedPerFile(t *testing.T) {
	packDir := t.TempDir()
	// A regular file where the extraction needs a directory
	blocker := filepath.Join(packDir, "mods", "blocker")
	require.NoError(t, os.MkdirAll(filepath.Dir(blocker), 0755))
	require.NoError(t, os.WriteFile(blocker, []byte("in the way"), 0644))

	bundle := testutil.Bundle(t,
		testutil.Member{Name: "overrides/mods/blocker/x.jar", Data: "x"},
		testutil.Member{Name: "overrides/mods/ok.jar", Data: "ok"},
		testutil.Member{Name: "overrides/shaderpacks/BSL.zip", Data: "shader"},
	)

	r := NewResolver(Options{Workers: 2}, testutil.Logger())
	p, err := r.OpenBundle(bundle)
	require.NoError(t, err)

	report, err := r.Extract(context.Background(), p, packDir)
	require.NoError(t, err, "per-file failures do not abort the extraction")
	require.Len(t, report.Failed, 1)
	assert.Equal(t, filepath.Join(blocker, "x.jar"), report.Failed[0].Path)
	assert.True(t, errors.Is(report.Failed[0].Err, syncerr.ErrIO))
	assert.Equal(t, 2, report.Files)

	assert.FileExists(t, filepath.Join(packDir, "mods", "ok.jar"))
	assert.FileExists(t, filepath.Join(packDir, "shaderpacks", "BSL.zip"))
}

func TestEntryDestination(t *testing.T) {
	e := Entry{Name: "overrides/mods/Foo/bar.jar", Subdir: "mods", RelPath: "Foo/bar.jar"}
	dst, err := e.Destination("/pack")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/pack", "mods", "Foo", "bar.jar"), dst)
}
