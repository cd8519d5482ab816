package rescan

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/garry/plexbot/config"
)

type fakeStarter struct {
	commands []string
	err      error
}

func (f *fakeStarter) Start(_ context.Context, command string) error {
	f.commands = append(f.commands, command)
	return f.err
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) RefreshLibrary(context.Context) error {
	f.calls++
	return f.err
}

func newTrigger(starter CommandStarter, refresher Refresher) *Trigger {
	return &Trigger{
		starter:    starter,
		refresher:  refresher,
		scriptPath: "/opt/plex/update.sh",
		remoteDir:  "/Users/admin/Plex/downloads/ytdl",
	}
}

func TestRescanRunsScriptThenRefresh(t *testing.T) {
	starter := &fakeStarter{}
	refresher := &fakeRefresher{}

	require.NoError(t, newTrigger(starter, refresher).Rescan(context.Background(), CategoryPodcast, true))
	assert.Equal(t, []string{"/opt/plex/update.sh /Users/admin/Plex/downloads/ytdl Podcast"}, starter.commands)
	assert.Equal(t, 1, refresher.calls)
}

func TestRescanWithoutScript(t *testing.T) {
	starter := &fakeStarter{}
	refresher := &fakeRefresher{}

	require.NoError(t, newTrigger(starter, refresher).Rescan(context.Background(), CategoryMusic, false))
	assert.Empty(t, starter.commands)
	assert.Equal(t, 1, refresher.calls)

	trigger := newTrigger(nil, refresher)
	require.NoError(t, trigger.Rescan(context.Background(), CategoryMusic, true))
	assert.Equal(t, 2, refresher.calls)
}

func TestRescanErrors(t *testing.T) {
	refresher := &fakeRefresher{}
	err := newTrigger(&fakeStarter{err: errors.New("connection refused")}, refresher).Rescan(context.Background(), CategoryMusic, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, refresher.calls, "library is refreshed even when the script does not start")

	err = newTrigger(nil, &fakeRefresher{err: errors.New("status 401")}).Rescan(context.Background(), CategoryMusic, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")

	err = newTrigger(&fakeStarter{err: errors.New("connection refused")}, &fakeRefresher{err: errors.New("status 401")}).
		Rescan(context.Background(), CategoryMusic, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start plex update script")
}

func TestNewTrigger(t *testing.T) {
	cfg := &config.Config{
		Plex: config.PlexConfig{URL: "http://nas.local:32400"},
		Rescan: config.RescanConfig{
			Username:   "admin",
			Port:       2222,
			KeyPath:    "/keys/id",
			ScriptPath: "/opt/update.sh",
			RemoteDir:  "/downloads",
		},
	}

	trigger := NewTrigger(cfg, &fakeRefresher{})
	starter, ok := trigger.starter.(*SSHStarter)
	require.True(t, ok)
	assert.Equal(t, "nas.local:2222", starter.Addr)
	assert.Equal(t, "admin", starter.User)

	cfg.Rescan.ScriptPath = ""
	assert.Nil(t, NewTrigger(cfg, &fakeRefresher{}).starter)

	cfg.Plex.Host = "10.0.0.5"
	assert.Equal(t, "10.0.0.5", plexHost(cfg.Plex))
}

func TestSSHStarterClientConfig(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	s := &SSHStarter{Addr: "nas:22", User: "admin", KeyPath: keyPath}
	cfg, err := s.clientConfig()
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.User)
	assert.NotNil(t, cfg.HostKeyCallback)

	s.KnownHosts = filepath.Join(dir, "missing_known_hosts")
	_, err = s.clientConfig()
	assert.Error(t, err)

	s.KeyPath = filepath.Join(dir, "missing")
	_, err = s.clientConfig()
	assert.Error(t, err)
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory("Audiobook"))
	assert.False(t, ValidCategory("music"))
}
