package activation

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseEnv(t *testing.T) {
	const pid = 4242

	tests := []struct {
		name    string
		env     map[string]string
		want    *fdSet
		wantErr bool
	}{
		{name: "not activated", env: map[string]string{}},
		{name: "other process", env: map[string]string{"LISTEN_PID": "1", "LISTEN_FDS": "1"}},
		{name: "invalid pid", env: map[string]string{"LISTEN_PID": "abc", "LISTEN_FDS": "1"}, wantErr: true},
		{name: "missing fds", env: map[string]string{"LISTEN_PID": "4242"}},
		{name: "invalid fds", env: map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "x"}, wantErr: true},
		{name: "zero fds", env: map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "0"}},
		{name: "one unnamed", env: map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "1"}, want: &fdSet{count: 1}},
		{
			name: "named",
			env:  map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "2", "LISTEN_FDNAMES": "metrics:webhook"},
			want: &fdSet{count: 2, names: []string{"metrics", "webhook"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := parseEnv(envOf(tt.env), pid)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, set)
		})
	}
}

func TestFDSetIndex(t *testing.T) {
	set := &fdSet{count: 2, names: []string{"metrics", "webhook"}}

	i, ok := set.index("webhook")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = set.index("")
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	_, ok = set.index("other")
	assert.False(t, ok)

	unnamed := &fdSet{count: 1}
	i, ok = unnamed.index("webhook")
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	// Names past the descriptor count are ignored
	short := &fdSet{count: 1, names: []string{"a", "webhook"}}
	_, ok = short.index("webhook")
	assert.False(t, ok)
}

func TestListener_NotActivated(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	ln, err := Listener("webhook")
	require.NoError(t, err)
	assert.Nil(t, ln)
}

func TestListener_UnknownName(t *testing.T) {
	t.Setenv("LISTEN_PID", strconv.Itoa(os.Getpid()))
	t.Setenv("LISTEN_FDS", "1")
	t.Setenv("LISTEN_FDNAMES", "metrics")

	_, err := Listener("webhook")
	require.Error(t, err)
	assert.Empty(t, os.Getenv("LISTEN_FDS"), "activation variables are cleared")
}
