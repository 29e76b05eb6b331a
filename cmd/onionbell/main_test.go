package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/control/client"
	"github.com/onion108/onionbell/internal/state"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func wavBytes() []byte {
	return append([]byte("RIFF\x24\x08\x00\x00WAVE"), make([]byte, 500)...)
}

func TestCheckConfigReportsRulesAndSounds(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "a.wav", wavBytes())
	kitty := writeFile(t, dir, "c.wav", wavBytes())
	path := writeFile(t, dir, "config.toml", []byte(fmt.Sprintf(`
sound = %q
player = ["pw-play", "{path}"]

[[rule]]
name = "kitty"
class_regex = "^kitty$"
sound = %q
`, def, kitty)))

	var out bytes.Buffer
	require.NoError(t, checkConfig(context.Background(), &out, path, ""))

	report := out.String()
	assert.Contains(t, report, "configuration: "+path)
	assert.Contains(t, report, "class~^kitty$")
	assert.Contains(t, report, kitty)
	assert.Contains(t, report, "wav")
	assert.Contains(t, report, "\nok\n")
}

func TestCheckConfigNotesIgnoredVolume(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "a.wav", wavBytes())
	path := writeFile(t, dir, "config.toml", []byte(fmt.Sprintf(`
sound = %q
volume = 0.4
player = ["aplay", "-q", "{path}"]
`, def)))

	var out bytes.Buffer
	require.NoError(t, checkConfig(context.Background(), &out, path, ""))
	assert.Contains(t, out.String(), "player: aplay takes no volume placeholder, configured volumes are ignored")

	path = writeFile(t, dir, "scaled.toml", []byte(fmt.Sprintf(`
sound = %q
volume = 0.4
player = ["pw-play", "--volume={volume}", "{path}"]
`, def)))
	out.Reset()
	require.NoError(t, checkConfig(context.Background(), &out, path, ""))
	assert.NotContains(t, out.String(), "configured volumes are ignored")
}

func TestCheckConfigFailsOnMissingSound(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", []byte(`
sound = "/nonexistent/onionbell/a.wav"
player = ["pw-play", "{path}"]

[[rule]]
sound = "/nonexistent/onionbell/wild.wav"

[[rule]]
class_regex = "^kitty$"
`))

	var out bytes.Buffer
	err := checkConfig(context.Background(), &out, path, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errCheckFailed))
	assert.Contains(t, out.String(), "warnings:")
	assert.Contains(t, out.String(), "unreachable")
	assert.Contains(t, out.String(), "* (every window)")
}

func TestCheckConfigRejectsInvalidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", []byte(`volume = 4.0`))

	var out bytes.Buffer
	err := checkConfig(context.Background(), &out, path, "")
	require.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out.String(), "invalid configuration")
}

func TestCheckConfigDiffAgainst(t *testing.T) {
	dir := t.TempDir()
	ours := writeFile(t, dir, "ours.toml", []byte("volume = 0.5\nplayer = [\"pw-play\", \"{path}\"]\n"))
	theirs := writeFile(t, dir, "theirs.toml", []byte("volume = 0.8\nplayer = [\"pw-play\", \"{path}\"]\n"))

	var out bytes.Buffer
	require.NoError(t, checkConfig(context.Background(), &out, ours, theirs))
	assert.Contains(t, out.String(), "differences from "+theirs)
	assert.Contains(t, out.String(), "0.5")

	out.Reset()
	require.NoError(t, checkConfig(context.Background(), &out, ours, ours))
	assert.Contains(t, out.String(), "no differences")
}

func TestExplainWindow(t *testing.T) {
	floating := true
	cfg := &config.Config{
		Sound:  "a.wav",
		Volume: 1,
		Query:  config.QuerySocket,
		Rules: []config.RuleConfig{
			{Name: "floating", Floating: &floating, Sound: "b.wav"},
			{Name: "kitty", ClassRegex: "^kitty$", Sound: "c.wav"},
			{Name: "discord", ClassRegex: "^discord$"},
		},
	}

	tests := []struct {
		name string
		win  state.Window
		want string
	}{
		{"floating kitty", state.Window{Class: "kitty", Floating: true}, "rule floating: play b.wav"},
		{"tiled kitty", state.Window{Class: "kitty"}, "rule kitty: play c.wav"},
		{"discord", state.Window{Class: "discord"}, "rule discord: silent"},
		{"other", state.Window{Class: "foot"}, "rule default: play a.wav"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, explainWindow(&out, cfg, tc.win))
			assert.Contains(t, out.String(), tc.want)
		})
	}

	var out bytes.Buffer
	require.NoError(t, explainWindow(&out, cfg, state.Window{Class: "kitty", Floating: true}))
	assert.Contains(t, out.String(), "match (shadowed)")
}

func TestWindowFromFlags(t *testing.T) {
	explainClass, explainWorkspace = "kitty", "3"
	t.Cleanup(func() { explainClass, explainWorkspace = "", "" })

	win := windowFromFlags()
	assert.Equal(t, "kitty", win.Class)
	assert.Equal(t, 3, win.Workspace.ID)
	assert.Equal(t, "3", win.Workspace.Name)

	explainWorkspace = "dev"
	win = windowFromFlags()
	assert.Zero(t, win.Workspace.ID)
	assert.Equal(t, "dev", win.Workspace.Name)
}

func TestStatusWithoutDaemon(t *testing.T) {
	controlSocket = filepath.Join(t.TempDir(), "absent.sock")
	t.Cleanup(func() { controlSocket = "" })

	var out bytes.Buffer
	statusCmd.SetOut(&out)
	statusCmd.SetContext(context.Background())
	err := runStatus(statusCmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrDaemonUnavailable), "got %v", err)
}

func TestStatusWatchRejectsJSON(t *testing.T) {
	statusWatch, statusJSON = true, true
	t.Cleanup(func() { statusWatch, statusJSON = false, false })

	statusCmd.SetContext(context.Background())
	err := runStatus(statusCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be combined")
}

func TestWatchStatusShowsDaemonErrorsUntilCancelled(t *testing.T) {
	cli := client.New(filepath.Join(t.TempDir(), "absent.sock"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, watchStatus(ctx, &out, cli, 10*time.Millisecond))
	assert.Contains(t, out.String(), "onionbell status, Ctrl+C to exit")
	assert.Contains(t, out.String(), "error: ")
	assert.Contains(t, out.String(), "dial control socket")
}

func TestReplayFixture(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFile(t, dir, "fixture.json", []byte(`{
  "name": "coding",
  "clients": [
    {"address": "0x1", "class": "kitty", "floating": false, "workspace": {"id": 1, "name": "1"}},
    {"address": "0x2", "class": "kitty", "floating": true, "workspace": {"id": 1, "name": "1"}},
    {"address": "0x3", "class": "discord", "workspace": {"id": 2, "name": "2"}}
  ],
  "events": [
    "workspace>>1",
    "bell>>1",
    "bell>>2",
    "bell>>3",
    "garbage",
    "bell>>ff",
    "bell>>1"
  ]
}`))
	floating := true
	cfg := &config.Config{
		Sound:  "a.wav",
		Volume: 1,
		Query:  config.QuerySocket,
		Rules: []config.RuleConfig{
			{Name: "floating", Floating: &floating, Sound: "b.wav"},
			{Name: "kitty", ClassRegex: "^kitty$", Sound: "c.wav"},
			{Name: "discord", ClassRegex: "^discord$"},
		},
	}

	loaded, err := loadFixture(fixture, "")
	require.NoError(t, err)
	assert.Len(t, loaded.Events, 7)

	report, err := replay(context.Background(), nil, cfg, loaded, 2)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Bells)
	assert.Equal(t, map[string]int{"c.wav": 4, "b.wav": 2}, report.Plays)
	assert.EqualValues(t, 2, report.Metrics.Totals.ResolveErrors)
	assert.EqualValues(t, 2, report.Metrics.Totals.Silenced)
	assert.Len(t, report.Last, 5)

	var out bytes.Buffer
	require.NoError(t, printReplay(&out, report))
	assert.Contains(t, out.String(), "coding: 7 events, 10 bells")
	assert.Contains(t, out.String(), "c.wav")
}

func TestLoadFixtureFromEventLog(t *testing.T) {
	dir := t.TempDir()
	log := writeFile(t, dir, "events.log", []byte("bell>>1\nactivewindow>>kitty,tmux\n\nbell>>2\n"))
	clients := writeFile(t, dir, "clients.json", []byte(`[{"address": "0x1", "class": "kitty"}]`))

	fixture, err := loadFixture(log, clients)
	require.NoError(t, err)
	assert.Equal(t, []string{"bell>>1", "activewindow>>kitty,tmux", "bell>>2"}, fixture.Events)
	require.Len(t, fixture.Clients, 1)
	assert.Equal(t, "kitty", fixture.Clients[0].Class)

	_, err = loadFixture(writeFile(t, dir, "empty.log", nil), "")
	require.Error(t, err)
}
