package transport

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/gliderlabs/ssh"
	gossh "golang.org/x/crypto/ssh"

	"github.com/oakmoss/telnetcore"
	"github.com/oakmoss/telnetcore/option"
)

// SSHConfig configures an SSH listener. Authentication is left to the
// embedder: set PasswordHandler and/or KeyboardInteractiveHandler, or
// leave both nil to accept any client (suitable only for a MUD that does
// its own in-band login).
type SSHConfig struct {
	HostKeyPath string
	Host        string
	Port        int

	// LegacyAlgorithms widens the negotiated key exchange, cipher, and
	// MAC suites to include algorithms old terminal clients (SyncTERM and
	// similar) still depend on. Leave false unless a specific client
	// population needs it.
	LegacyAlgorithms bool

	PasswordHandler            func(ctx ssh.Context, password string) bool
	KeyboardInteractiveHandler func(ctx ssh.Context, challenger gossh.KeyboardInteractiveChallenge) bool

	// Version overrides the SSH server's identification banner.
	Version string
}

// SSHServer wraps a gliderlabs/ssh server bound to a telnetcore.Manager:
// every accepted session is adopted as a connection with
// option.TransportSSH, and pty window-change requests update its
// ClientDetails directly rather than riding Telnet NAWS.
type SSHServer struct {
	inner *ssh.Server
}

// ListenSSH configures and starts an SSH listener in the background.
// Accepted sessions are adopted into mgr. Call Close on the returned
// server to stop accepting and close active sessions.
func ListenSSH(mgr *telnetcore.Manager, cfg SSHConfig) (*SSHServer, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	keyBytes, err := os.ReadFile(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: read SSH host key %s: %w", cfg.HostKeyPath, err)
	}
	signer, err := gossh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("transport: parse SSH host key: %w", err)
	}

	srv := &ssh.Server{
		Addr:            addr,
		HostSigners:     []ssh.Signer{signer},
		PasswordHandler: cfg.PasswordHandler,
		Version:         cfg.Version,
		ConnectionFailedCallback: func(c net.Conn, err error) {
			log.Printf("WARN: SSH connection failed from %s: %v", c.RemoteAddr(), err)
		},
		Handler: func(sess ssh.Session) {
			handleSSHSession(mgr, sess)
		},
	}
	if cfg.KeyboardInteractiveHandler != nil {
		srv.KeyboardInteractiveHandler = cfg.KeyboardInteractiveHandler
	}

	legacy := cfg.LegacyAlgorithms
	srv.ServerConfigCallback = func(ctx ssh.Context) *gossh.ServerConfig {
		sc := &gossh.ServerConfig{}
		if legacy {
			sc.Config.KeyExchanges = []string{
				"curve25519-sha256", "curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256", "diffie-hellman-group16-sha512",
				"diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1",
			}
			sc.Config.Ciphers = []string{
				"chacha20-poly1305@openssh.com", "aes128-gcm@openssh.com", "aes256-gcm@openssh.com",
				"aes128-ctr", "aes192-ctr", "aes256-ctr", "aes128-cbc", "aes256-cbc", "3des-cbc",
			}
			sc.Config.MACs = []string{
				"hmac-sha2-256-etm@openssh.com", "hmac-sha2-512-etm@openssh.com",
				"hmac-sha2-256", "hmac-sha2-512", "hmac-sha1",
			}
		}
		return sc
	}

	s := &SSHServer{inner: srv}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
			log.Printf("ERROR: SSH listener on %s stopped: %v", addr, err)
		}
	}()
	return s, nil
}

// Close shuts down the server and all active sessions.
func (s *SSHServer) Close() error { return s.inner.Close() }

func handleSSHSession(mgr *telnetcore.Manager, sess ssh.Session) {
	c := mgr.AdoptConnection(sess, option.TransportSSH)

	pty, winCh, isPTY := sess.Pty()
	if isPTY {
		c.UpdateWindowSize(pty.Window.Width, pty.Window.Height)
		go func() {
			for win := range winCh {
				c.UpdateWindowSize(win.Width, win.Height)
			}
		}()
	}

	<-sess.Context().Done()
}
