// Package rescan asks the Plex host to pick up newly downloaded files.
package rescan

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/garry/plexbot/config"
)

// Categories the update script knows how to sort downloads into.
const (
	CategoryMusic     = "Music"
	CategoryPodcast   = "Podcast"
	CategoryAudiobook = "Audiobook"
)

// Categories lists the accepted categories in prompt order.
var Categories = []string{CategoryMusic, CategoryPodcast, CategoryAudiobook}

// ValidCategory reports whether s is one of Categories.
func ValidCategory(s string) bool {
	for _, c := range Categories {
		if c == s {
			return true
		}
	}
	return false
}

// CommandStarter starts a remote command without waiting for it to finish.
type CommandStarter interface {
	Start(ctx context.Context, command string) error
}

// Refresher triggers a library scan on the media server.
type Refresher interface {
	RefreshLibrary(ctx context.Context) error
}

// Trigger runs the remote update script and refreshes the library
type Trigger struct {
	starter    CommandStarter
	refresher  Refresher
	scriptPath string
	remoteDir  string
}

// NewTrigger builds a trigger from configuration. The SSH starter is only
// set up when a script path and user name are configured.
func NewTrigger(cfg *config.Config, refresher Refresher) *Trigger {
	t := &Trigger{
		refresher:  refresher,
		scriptPath: cfg.Rescan.ScriptPath,
		remoteDir:  cfg.Rescan.RemoteDir,
	}
	if cfg.Rescan.RescanEnabled() {
		t.starter = &SSHStarter{
			Addr:       net.JoinHostPort(plexHost(cfg.Plex), strconv.Itoa(cfg.Rescan.Port)),
			User:       cfg.Rescan.Username,
			KeyPath:    cfg.Rescan.KeyPath,
			KnownHosts: cfg.Rescan.KnownHosts,
		}
	}
	return t
}

// Rescan starts "<script> <remoteDir> <category>" on the Plex host when
// runScript is set and a script is configured, then refreshes the library.
// The script runs in the background; its outcome is only logged. A script
// that fails to start does not prevent the refresh.
func (t *Trigger) Rescan(ctx context.Context, category string, runScript bool) error {
	log := zerolog.Ctx(ctx)

	var scriptErr error
	if runScript && t.starter != nil && t.scriptPath != "" {
		command := fmt.Sprintf("%s %s %s", t.scriptPath, t.remoteDir, category)
		log.Info().Str("command", command).Msg("Starting plex update script")
		if err := t.starter.Start(ctx, command); err != nil {
			scriptErr = errors.Wrap(err, "failed to start plex update script")
			log.Error().Err(scriptErr).Msg("Plex update script did not start")
		}
	} else {
		log.Warn().Msg("Skipping plex update script execution")
	}

	if err := t.refresher.RefreshLibrary(ctx); err != nil {
		return errors.CombineErrors(scriptErr, errors.Wrap(err, "failed to refresh library"))
	}
	log.Info().Str("category", category).Msg("Library refresh requested")
	return scriptErr
}

// SSHStarter runs commands on a remote host with public key authentication.
type SSHStarter struct {
	Addr       string
	User       string
	KeyPath    string
	KnownHosts string // empty accepts any host key

	// Timeout bounds the connection handshake. Zero means 15 seconds.
	Timeout time.Duration
}

// Start connects, starts command and returns. The session is closed from a
// goroutine once the command exits.
func (s *SSHStarter) Start(ctx context.Context, command string) error {
	cfg, err := s.clientConfig()
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", s.Addr)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, s.Addr, cfg)
	if err != nil {
		conn.Close()
		return errors.Wrapf(err, "ssh handshake with %s failed", s.Addr)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return errors.Wrap(err, "failed to open ssh session")
	}

	if err := session.Start(command); err != nil {
		session.Close()
		client.Close()
		return errors.Wrapf(err, "failed to start %q", command)
	}

	log := zerolog.Ctx(ctx).With().Str("command", command).Logger()
	go func() {
		defer client.Close()
		defer session.Close()
		if err := session.Wait(); err != nil {
			log.Error().Err(err).Msg("Remote command failed")
			return
		}
		log.Info().Msg("Remote command finished")
	}()

	return nil
}

func (s *SSHStarter) clientConfig() (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(s.KeyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read ssh key %s", s.KeyPath)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse ssh key %s", s.KeyPath)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if s.KnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(s.KnownHosts)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load known hosts %s", s.KnownHosts)
		}
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &ssh.ClientConfig{
		User:            s.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// plexHost is PLEX_HOST, or the host part of the Plex URL.
func plexHost(cfg config.PlexConfig) string {
	if cfg.Host != "" {
		return cfg.Host
	}
	if u, err := url.Parse(cfg.URL); err == nil {
		return u.Hostname()
	}
	return ""
}
