// Package conn implements a single Telnet connection: the read/dispatch
// loop that drives the telnet parser and option state machine, outbound
// buffering, and the text-formatting rules used to send data back to the
// client.
package conn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/oakmoss/telnetcore/option"
	"github.com/oakmoss/telnetcore/telnet"
)

// TextMode selects the outbound formatting rules for SendText.
type TextMode int

const (
	ModeText TextMode = iota
	ModeLine
	ModePrompt
)

// GameMsg is one complete line of application data received from the
// client, handed to the embedder via Connection.Messages.
type GameMsg struct {
	Command    string
	Overflowed bool
}

// EventKind describes a connection lifecycle transition.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
)

// Event is posted to the owning manager's event channel.
type Event struct {
	ConnID string
	Kind   EventKind
}

// HandshakeSettle is the delay after which a connection is declared ready
// regardless of whether option negotiation has finished.
const HandshakeSettle = 300 * time.Millisecond

// inboundQueueCapacity is the default size of the per-connection GameMsg
// channel. Overflow drops the message and flags the next one rather than
// blocking the reader goroutine, which would stall IAC processing.
const inboundQueueCapacity = 128

// Connection owns one client socket end-to-end: parsing, option state,
// capability details, and buffered I/O.
type Connection struct {
	ID      string
	Details *option.ClientDetails

	rw     io.ReadWriteCloser
	events chan<- Event

	options *option.Table

	readMu  sync.Mutex // guards readBuf; never held across dispatch/consume
	readBuf []byte
	scratch bytes.Buffer // accumulated AppData awaiting a newline

	writeMu  sync.Mutex
	writing  bool
	outBuf   []byte
	extraBuf []byte

	inbound chan GameMsg

	overflowed bool
	flagNext   bool // a message was dropped; the next delivered one carries Overflowed

	closeOnce sync.Once
	closed    chan struct{}

	mu sync.Mutex // guards overflowed, flagNext and reads of Details from other goroutines
}

// New constructs a Connection around rw. events receives lifecycle
// notifications; the caller is responsible for registering the
// connection with a manager-level registry under id.
func New(id string, rw io.ReadWriteCloser, transport option.TransportKind, events chan<- Event) *Connection {
	c := &Connection{
		ID:      id,
		Details: &option.ClientDetails{Transport: transport},
		rw:      rw,
		events:  events,
		options: option.NewTable(),
		inbound: make(chan GameMsg, inboundQueueCapacity),
		closed:  make(chan struct{}),
	}
	return c
}

// Messages returns the channel of complete application-data lines.
func (c *Connection) Messages() <-chan GameMsg { return c.inbound }

// Options exposes the live option table, chiefly for copyover
// serialization and tests.
func (c *Connection) Options() *option.Table { return c.options }

// Run drives the connection until ctx is cancelled or the peer
// disconnects. It performs the initial option handshake, then loops
// reading and dispatching bytes until EOF or error.
func (c *Connection) Run(ctx context.Context) {
	if c.Details.Transport == option.TransportSSH {
		// SSH sessions carry no in-band Telnet IAC stream; negotiating
		// options over them would write raw protocol bytes into the
		// client's PTY. Mark every option answered-and-disabled instead
		// of starting a handshake nothing on the other end speaks.
		c.options.SuppressNegotiation()
	} else {
		for _, out := range c.options.Start() {
			c.sendOutbound(out)
		}
	}

	settled := time.AfterFunc(HandshakeSettle, func() {
		c.postEvent(EventConnected)
	})
	defer settled.Stop()

	done := ctx.Done()
	readCh := make(chan readResult, 1)
	go c.readLoop(readCh)

	for {
		select {
		case <-done:
			c.Close()
			return
		case res, ok := <-readCh:
			if !ok {
				c.postEvent(EventDisconnected)
				return
			}
			if res.err != nil {
				c.postEvent(EventDisconnected)
				return
			}
			c.readMu.Lock()
			buf := append(c.readBuf, res.data...)
			c.readMu.Unlock()

			buf = c.consume(buf)

			c.readMu.Lock()
			c.readBuf = buf
			c.readMu.Unlock()
			go c.readLoop(readCh)
		}
	}
}

// PendingInbound returns the bytes read from the transport but not yet
// forming a complete Telnet message, for copyover serialization.
func (c *Connection) PendingInbound() []byte {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return append([]byte(nil), c.readBuf...)
}

// SetPendingInbound restores a partially-received frame, used when
// recovering a connection from a copyover document.
func (c *Connection) SetPendingInbound(data []byte) {
	c.readMu.Lock()
	c.readBuf = append([]byte(nil), data...)
	c.readMu.Unlock()
}

type readResult struct {
	data []byte
	err  error
}

func (c *Connection) readLoop(out chan<- readResult) {
	b := make([]byte, 4096)
	n, err := c.rw.Read(b)
	select {
	case out <- readResult{data: b[:n], err: err}:
	case <-c.closed:
	}
}

// consume feeds buf through the parser until no more complete messages
// remain, dispatching each, and returns the unconsumed tail.
func (c *Connection) consume(buf []byte) []byte {
	for {
		msg, n, ok := telnet.ParseMessage(buf)
		if !ok {
			return buf
		}
		c.dispatch(msg)
		buf = buf[n:]
	}
}

func (c *Connection) dispatch(msg telnet.Message) {
	switch msg.Kind {
	case telnet.KindAppData:
		c.dispatchAppData(msg.Bytes)
	case telnet.KindNegotiation:
		if reply := c.options.Negotiate(msg.Verb, msg.Option, c); reply != nil {
			c.sendOutbound(*reply)
		}
	case telnet.KindSubnegotiation:
		c.dispatchSubnegotiation(msg.Option, msg.Payload)
	case telnet.KindCommand:
		// No server-side behavior is specified for bare command codes
		// (GA, NOP, EOR, ...); they are simply consumed.
	}
}

func (c *Connection) dispatchAppData(data []byte) {
	for _, b := range data {
		switch b {
		case '\n':
			c.pushMessage(c.scratch.String())
			c.scratch.Reset()
		case '\r':
			// dropped
		default:
			c.scratch.WriteByte(b)
		}
	}
}

func (c *Connection) pushMessage(command string) {
	c.mu.Lock()
	msg := GameMsg{Command: command, Overflowed: c.flagNext}
	c.mu.Unlock()
	select {
	case c.inbound <- msg:
		if msg.Overflowed {
			c.mu.Lock()
			c.flagNext = false
			c.mu.Unlock()
		}
	default:
		// Queue full: drop this message and flag the next one delivered.
		c.mu.Lock()
		c.overflowed = true
		c.flagNext = true
		c.mu.Unlock()
	}
}

func (c *Connection) dispatchSubnegotiation(code byte, payload []byte) {
	switch code {
	case telnet.OptTermType:
		opt := c.options.Get(telnet.OptTermType)
		if opt == nil || !opt.Remote.Enabled {
			return
		}
		if option.HandleMTTS(&opt.MTTS, payload, c.Details) {
			c.sendOutbound(option.StartMTTS())
		}
	case telnet.OptNAWS:
		c.HandleNAWS(payload)
	}
}

func (c *Connection) sendOutbound(out option.Outbound) {
	var raw []byte
	if out.Negotiation {
		raw = []byte{telnet.IAC, out.Verb, out.Option}
	} else if out.Subnegotiation {
		raw = append([]byte{telnet.IAC, telnet.SB, out.Option}, telnet.EscapeIAC(out.Payload)...)
		raw = append(raw, telnet.IAC, telnet.SE)
	}
	c.SendBytes(raw)
}

// SendBytes enqueues raw bytes for the peer, IAC-escaping is the caller's
// responsibility for anything that isn't already a well-formed Telnet
// command sequence. A single writer goroutine per connection is kept in
// flight at a time; concurrent callers append to an extension buffer that
// is merged in once the in-flight write completes.
func (c *Connection) SendBytes(data []byte) {
	if len(data) == 0 {
		return
	}
	c.writeMu.Lock()
	if c.writing {
		c.extraBuf = append(c.extraBuf, data...)
		c.writeMu.Unlock()
		return
	}
	c.writing = true
	c.outBuf = append(c.outBuf, data...)
	c.writeMu.Unlock()
	go c.drainWrites()
}

func (c *Connection) drainWrites() {
	for {
		c.writeMu.Lock()
		chunk := c.outBuf
		c.outBuf = nil
		c.writeMu.Unlock()

		if len(chunk) > 0 {
			if _, err := c.rw.Write(chunk); err != nil {
				c.writeMu.Lock()
				c.writing = false
				c.writeMu.Unlock()
				c.postEvent(EventDisconnected)
				return
			}
		}

		c.writeMu.Lock()
		if len(c.extraBuf) == 0 {
			c.writing = false
			c.writeMu.Unlock()
			return
		}
		c.outBuf, c.extraBuf = c.extraBuf, nil
		c.writeMu.Unlock()
	}
}

// SendText writes s to the connection, rewriting bare newlines to CRLF
// per mode's framing rules.
func (c *Connection) SendText(s string, mode TextMode) {
	var out bytes.Buffer
	for _, r := range s {
		switch r {
		case '\n':
			out.WriteString("\r\n")
		case '\r':
			// dropped
		default:
			out.WriteRune(r)
		}
	}
	if mode == ModeLine && (out.Len() < 2 || string(out.Bytes()[out.Len()-2:]) != "\r\n") {
		out.WriteString("\r\n")
	}
	data := out.Bytes()
	if mode == ModePrompt {
		if c.Details.TelOptEOR {
			data = append(data, telnet.IAC, telnet.EOR)
		} else {
			data = append(data, telnet.IAC, telnet.GA)
		}
	}
	c.SendBytes(data)
}

// EnableLocal implements option.Hooks.
func (c *Connection) EnableLocal(code byte) { c.setFlag(code, true) }

// DisableLocal implements option.Hooks.
func (c *Connection) DisableLocal(code byte) { c.setFlag(code, false) }

// EnableRemote implements option.Hooks.
func (c *Connection) EnableRemote(code byte) {
	c.setFlag(code, true)
	if code == telnet.OptTermType {
		c.sendOutbound(option.StartMTTS())
	}
}

// DisableRemote implements option.Hooks.
func (c *Connection) DisableRemote(code byte) { c.setFlag(code, false) }

func (c *Connection) setFlag(code byte, on bool) {
	switch code {
	case telnet.OptSGA:
		c.Details.SuppressGA = on
	case telnet.OptMSDP:
		c.Details.MSDP = on
	case telnet.OptGMCP:
		c.Details.GMCP = on
	case telnet.OptMSSP:
		c.Details.MSSP = on
	case telnet.OptNAWS:
		c.Details.NAWS = on
	case telnet.OptTelOptEOR:
		c.Details.TelOptEOR = on
	case telnet.OptMXP:
		c.Details.MXP = on
	}
}

// HandleNAWS applies a NAWS subnegotiation payload (4 bytes: width hi/lo,
// height hi/lo) to Details. A width or height of 0 or above 1000 is
// replaced by the default of 80 columns or 25 rows respectively.
func (c *Connection) HandleNAWS(payload []byte) {
	if len(payload) < 4 {
		return
	}
	w := int(payload[0])<<8 | int(payload[1])
	h := int(payload[2])<<8 | int(payload[3])
	if w <= 0 || w > 1000 {
		w = 80
	}
	if h <= 0 || h > 1000 {
		h = 25
	}
	c.Details.Width = w
	c.Details.Height = h
}

// UpdateWindowSize sets the client's terminal dimensions directly, for
// transports that report window size out-of-band from Telnet NAWS (an SSH
// pty's initial size and Window-Change requests, chiefly). It also marks
// Details.NAWS true, since the capability NAWS exists to provide is
// satisfied either way.
func (c *Connection) UpdateWindowSize(width, height int) {
	if width > 0 {
		c.Details.Width = width
	}
	if height > 0 {
		c.Details.Height = height
	}
	c.Details.NAWS = true
}

func (c *Connection) postEvent(kind EventKind) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- Event{ConnID: c.ID, Kind: kind}:
	default:
	}
}

// PendingAppData returns the application-data bytes accumulated since the
// last newline, for copyover serialization.
func (c *Connection) PendingAppData() string {
	return c.scratch.String()
}

// SetAppData restores the application-data scratch buffer, used when
// recovering a connection from a copyover document.
func (c *Connection) SetAppData(s string) {
	c.scratch.Reset()
	c.scratch.WriteString(s)
}

// PendingOutbound returns whatever bytes are queued to be written but
// have not yet been handed to the transport, for copyover serialization.
// The queue itself is left unchanged.
func (c *Connection) PendingOutbound() []byte {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	pending := append(c.outBuf, c.extraBuf...)
	return pending
}

// Overflowed reports whether the inbound queue has ever dropped a
// message for this connection.
func (c *Connection) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflowed
}

// Close shuts down the underlying transport and stops the read/write
// loops. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.rw.Close()
	})
	return err
}

// String implements fmt.Stringer for log lines.
func (c *Connection) String() string {
	return fmt.Sprintf("conn[%s]", c.ID)
}

// fileProvider is satisfied by net.Conn implementations (*net.TCPConn,
// *net.UnixConn, ...) that can hand back a dup'd *os.File for the
// underlying descriptor. Used by copyover to obtain an inheritable fd.
type fileProvider interface {
	File() (*os.File, error)
}

// File returns the duplicated OS file descriptor backing this
// connection's transport, for copyover. ok is false when the transport
// does not support descriptor duplication (e.g. a WebSocket or in-memory
// pipe).
func (c *Connection) File() (f *os.File, fd uintptr, ok bool) {
	fp, isFP := c.rw.(fileProvider)
	if !isFP {
		return nil, 0, false
	}
	f, err := fp.File()
	if err != nil {
		return nil, 0, false
	}
	return f, f.Fd(), true
}
