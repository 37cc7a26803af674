// Package transport provides sibling listeners for telnetcore.Manager:
// Telnet-over-TLS, Telnet-over-WebSocket, and SSH. Each listener accepts
// connections on its own goroutine and hands the resulting byte stream to
// Manager.AdoptConnection, exactly as the manager's own plain-TCP accept
// loop does.
package transport

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/oakmoss/telnetcore"
	"github.com/oakmoss/telnetcore/internal/corelog"
	"github.com/oakmoss/telnetcore/option"
)

// ListenTLS binds a TLS listener on ip:port using the given certificate
// and key files and accepts connections in the background, handing each
// one to mgr.AdoptConnection with option.TransportTLS. The returned
// listener is not tracked by Manager (copyover only preserves plain-TCP
// listeners); the caller owns its lifetime and should Close it on
// shutdown.
func ListenTLS(mgr *telnetcore.Manager, ip string, port int, certFile, keyFile string) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: load TLS certificate: %w", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	addr := fmt.Sprintf("%s:%d", ip, port)
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: TLS listen on %s: %w", addr, err)
	}

	corelog.Infof("TLS telnet listener bound on %s", addr)
	go acceptLoop(mgr, ln, option.TransportTLS)
	return ln, nil
}

func acceptLoop(mgr *telnetcore.Manager, ln net.Listener, kind option.TransportKind) {
	for {
		c, err := ln.Accept()
		if err != nil {
			corelog.Errorf("transport: accept on %s failed: %v", ln.Addr(), err)
			return
		}
		mgr.AdoptConnection(c, kind)
	}
}
