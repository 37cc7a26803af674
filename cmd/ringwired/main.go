// Command ringwired is a minimal Telnet/MUD server embedding telnetcore:
// enough wiring to bind every supported transport, echo received lines
// back to their connection, and demonstrate copyover (zero-downtime
// process replacement) triggered by SIGHUP or a single keystroke.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oakmoss/telnetcore"
	"github.com/oakmoss/telnetcore/internal/config"
	"github.com/oakmoss/telnetcore/internal/corelog"
	"github.com/oakmoss/telnetcore/transport"
)

// copyoverDocEnv names the environment variable an exec'd successor reads
// to find the document its predecessor wrote before replacing itself.
const copyoverDocEnv = "RINGWIRED_COPYOVER_DOC"

var (
	configDir string
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "ringwired",
	Short: "A minimal telnetcore-based MUD server",
	Long: `ringwired is a demonstration embedder for telnetcore: it binds
whichever transports config.json enables, echoes received lines back to
the client, and supports copyover — replacing its own process image
without dropping a single connection.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bind configured listeners and run until stopped",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing config.json")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	corelog.DebugEnabled = debug

	cfg, err := config.LoadServerConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mgr := telnetcore.New()

	if docPath := os.Getenv(copyoverDocEnv); docPath != "" {
		if err := recoverFromCopyover(mgr, docPath); err != nil {
			corelog.Errorf("copyover recovery from %s failed, starting fresh: %v", docPath, err)
		}
		os.Unsetenv(copyoverDocEnv)
	}

	if cfg.PlainTelnetEnabled {
		// ListenPlainTelnet is a no-op (logged, not fatal) if a copyover
		// recovery already bound this port.
		mgr.ListenPlainTelnet(cfg.PlainTelnetHost, cfg.PlainTelnetPort)
	}
	if cfg.TLSEnabled {
		if _, err := transport.ListenTLS(mgr, cfg.TLSHost, cfg.TLSPort, cfg.TLSCert, cfg.TLSKey); err != nil {
			corelog.Errorf("TLS listener not started: %v", err)
		}
	}
	if cfg.WebSocketEnabled {
		if _, err := transport.ListenWebSocket(mgr, cfg.WebSocketHost, cfg.WebSocketPort, cfg.WebSocketPath); err != nil {
			corelog.Errorf("websocket listener not started: %v", err)
		}
	}
	if cfg.SSHEnabled {
		if _, err := transport.ListenSSH(mgr, transport.SSHConfig{
			HostKeyPath:      cfg.SSHHostKeyPath,
			Host:             cfg.SSHHost,
			Port:             cfg.SSHPort,
			LegacyAlgorithms: cfg.LegacySSHAlgorithms,
			Version:          "ringwired",
		}); err != nil {
			corelog.Errorf("SSH listener not started: %v", err)
		}
	}

	if cfg.KeepaliveSchedule != "" {
		if err := mgr.StartKeepalive(cfg.KeepaliveSchedule); err != nil {
			corelog.Errorf("keepalive not started: %v", err)
		}
	}

	watcher, err := newConfigWatcher(configDir, mgr)
	if err != nil {
		corelog.Errorf("config hot-reload disabled: %v", err)
	} else {
		defer watcher.stop()
	}

	go dispatchEvents(mgr)
	go watchCopyoverSignals(mgr, cfg.CopyoverDocPath)
	go watchCopyoverKeystroke(mgr, cfg.CopyoverDocPath)

	log.Printf("INFO: ringwired serving (generation %s)", mgr.Generation)
	return mgr.Run(1)
}

// dispatchEvents logs connection lifecycle events and, for newly
// connected clients, spawns the trivial line-echo loop that stands in for
// a real game's input handling.
func dispatchEvents(mgr *telnetcore.Manager) {
	for ev := range mgr.Events() {
		switch ev.Kind {
		case telnetcore.EventConnected:
			log.Printf("INFO: connection %s ready", ev.ConnID)
			if c := mgr.Lookup(ev.ConnID); c != nil {
				go echoLoop(c)
			}
		case telnetcore.EventDisconnected:
			log.Printf("INFO: connection %s disconnected", ev.ConnID)
		}
	}
}

func echoLoop(c interface {
	Messages() <-chan telnetcore.GameMsg
	SendText(string, telnetcore.TextMode)
}) {
	for msg := range c.Messages() {
		if msg.Overflowed {
			c.SendText("-- input dropped, you're typing faster than we can read --", telnetcore.ModeLine)
		}
		c.SendText("you said: "+msg.Command, telnetcore.ModeLine)
	}
}

// watchCopyoverSignals triggers a copyover when the process receives
// SIGHUP or SIGUSR1, the two signals traditionally used to request a
// BBS/MUD hot restart without dropping connections.
func watchCopyoverSignals(mgr *telnetcore.Manager, docPath string) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1)
	for range sigCh {
		performCopyover(mgr, docPath)
	}
}

// watchCopyoverKeystroke lets an operator at an attached terminal trigger
// a copyover by pressing 'c', without needing a second shell to send a
// signal. It is a no-op when stdin is not a terminal.
func watchCopyoverKeystroke(mgr *telnetcore.Manager, docPath string) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		if buf[0] == 'c' {
			performCopyover(mgr, docPath)
		}
	}
}

func performCopyover(mgr *telnetcore.Manager, docPath string) {
	log.Printf("INFO: copyover requested")
	doc, err := mgr.Copyover()
	if err != nil {
		log.Printf("ERROR: copyover failed: %v", err)
		return
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Printf("ERROR: copyover document encode failed: %v", err)
		return
	}
	if err := os.WriteFile(docPath, data, 0o600); err != nil {
		log.Printf("ERROR: copyover document write failed: %v", err)
		return
	}

	exe, err := os.Executable()
	if err != nil {
		log.Printf("ERROR: copyover could not resolve executable path: %v", err)
		return
	}

	env := append(os.Environ(), copyoverDocEnv+"="+docPath)
	log.Printf("INFO: copyover exec'ing %s with %d preserved connection(s)", exe, len(doc.Connections))
	if err := syscall.Exec(exe, os.Args, env); err != nil {
		log.Printf("ERROR: copyover exec failed, continuing in this process: %v", err)
	}
}

func recoverFromCopyover(mgr *telnetcore.Manager, docPath string) error {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("read copyover document: %w", err)
	}
	doc, err := telnetcore.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("parse copyover document: %w", err)
	}
	if err := mgr.Recover(doc); err != nil {
		return fmt.Errorf("recover from copyover document: %w", err)
	}
	os.Remove(docPath)
	log.Printf("INFO: recovered %d connection(s) from copyover", len(doc.Connections))
	return nil
}
