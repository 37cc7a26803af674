//go:build !windows

package telnetcore

import (
	"encoding/base64"
	"fmt"
	"net"
	"os"

	"github.com/oakmoss/telnetcore/conn"
	"github.com/oakmoss/telnetcore/internal/corelog"
	"github.com/oakmoss/telnetcore/option"
)

// Copyover returns a Document describing every plain-TCP listener and
// connection, with everything needed to resume them in a successor
// process. It takes the snapshot while holding the registry lock and does
// not stop accept loops or connection read loops: they keep running until
// the process execs or Stop is called. The caller is responsible for
// keeping the inherited file descriptors open across its own exec call;
// Copyover only clears O_CLOEXEC on them (a side effect of File()).
func (m *Manager) Copyover() (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := &Document{
		Running:    true,
		Generation: m.Generation.String(),
	}

	for _, l := range m.listeners {
		tcpLn, ok := l.listener.(*net.TCPListener)
		if !ok {
			corelog.Warnf("listener on port %d is not inheritable across copyover, skipping", l.port)
			continue
		}
		f, err := tcpLn.File()
		if err != nil {
			corelog.Errorf("copyover: could not obtain fd for listener on port %d: %v", l.port, err)
			continue
		}
		doc.PlainTelnetListeners = append(doc.PlainTelnetListeners, ListenerDoc{
			Port: l.port, FD: f.Fd(), Protocol: 4,
		})
	}

	for id, c := range m.conns {
		cd, err := serializeConnection(id, c)
		if err != nil {
			corelog.Errorf("copyover: skipping connection %s: %v", id, err)
			continue
		}
		doc.Connections = append(doc.Connections, cd)
	}

	return doc, nil
}

func serializeConnection(id string, c *conn.Connection) (ConnectionDoc, error) {
	cd := ConnectionDoc{
		ID:      id,
		Details: toDetailsDoc(c.Details),
		AppData: c.PendingAppData(),
	}
	if pending := c.PendingOutbound(); len(pending) > 0 {
		cd.OutBuffer = base64.StdEncoding.EncodeToString(pending)
	}
	if pending := c.PendingInbound(); len(pending) > 0 {
		cd.InBuffer = base64.StdEncoding.EncodeToString(pending)
	}

	for _, p := range c.Options().SnapshotPolicies() {
		opt := c.Options().Get(p.Code)
		od := optionDoc{
			Code:   p.Code,
			Local:  perspectiveDoc(opt.Local),
			Remote: perspectiveDoc(opt.Remote),
		}
		if p.Code == 24 { // OptTermType
			od.MTTS = &mttsDoc{Round: opt.MTTS.Round, LastValue: opt.MTTS.LastValue, Done: opt.MTTS.Done()}
		}
		cd.Options = append(cd.Options, od)
	}

	_, fd, ok := c.File()
	if !ok {
		return ConnectionDoc{}, fmt.Errorf("connection %s has no inheritable descriptor", id)
	}
	// The duplicated descriptor must stay open across the caller's
	// syscall.Exec for the successor process to inherit it — unlike a
	// normal *os.File, it is deliberately never closed here.
	cd.FD = fd
	cd.Protocol = 4
	return cd, nil
}

// Recover reconstructs listeners and connections from a Document produced
// by a prior process's Copyover. It must be called before Run. No
// re-negotiation is performed; option and capability state is restored
// byte-for-byte.
func (m *Manager) Recover(doc *Document) error {
	for _, ld := range doc.PlainTelnetListeners {
		f := os.NewFile(ld.FD, fmt.Sprintf("telnet-listener-%d", ld.Port))
		ln, err := net.FileListener(f)
		f.Close()
		if err != nil {
			corelog.Errorf("recover: could not adopt listener fd for port %d: %v", ld.Port, err)
			continue
		}
		key := fmt.Sprintf("%d", ld.Port)
		m.mu.Lock()
		m.listeners[key] = &plainListener{port: ld.Port, listener: ln}
		m.mu.Unlock()
	}

	for _, cdoc := range doc.Connections {
		if err := m.recoverConnection(cdoc); err != nil {
			corelog.Errorf("recover: skipping connection %s: %v", cdoc.ID, err)
		}
	}

	return nil
}

func (m *Manager) recoverConnection(cdoc ConnectionDoc) error {
	f := os.NewFile(cdoc.FD, "telnet-conn-"+cdoc.ID)
	nc, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("adopt connection fd: %w", err)
	}

	c := conn.New(cdoc.ID, nc, option.TransportKind(cdoc.Details.Transport), m.events)
	*c.Details = *fromDetailsDoc(cdoc.Details)
	c.SetAppData(cdoc.AppData)
	if cdoc.InBuffer != "" {
		if raw, err := base64.StdEncoding.DecodeString(cdoc.InBuffer); err == nil {
			c.SetPendingInbound(raw)
		}
	}

	for _, od := range cdoc.Options {
		opt := c.Options().Get(od.Code)
		if opt == nil {
			continue
		}
		opt.Local = option.Perspective(od.Local)
		opt.Remote = option.Perspective(od.Remote)
		if od.MTTS != nil {
			opt.MTTS.Round = od.MTTS.Round
			opt.MTTS.LastValue = od.MTTS.LastValue
			opt.MTTS.SetDone(od.MTTS.Done)
		}
	}

	if cdoc.OutBuffer != "" {
		if raw, err := base64.StdEncoding.DecodeString(cdoc.OutBuffer); err == nil {
			c.SendBytes(raw)
		}
	}

	m.mu.Lock()
	m.conns[cdoc.ID] = c
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.Run(m.ctx)
		m.mu.Lock()
		delete(m.conns, cdoc.ID)
		m.mu.Unlock()
	}()

	return nil
}
