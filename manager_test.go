package telnetcore

import (
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/oakmoss/telnetcore/conn"
	"github.com/oakmoss/telnetcore/telnet"
)

func TestListenPlainTelnet_DuplicatePort(t *testing.T) {
	m := New()
	if !m.ListenPlainTelnet("127.0.0.1", 0) {
		t.Fatal("first ListenPlainTelnet call should succeed")
	}
	if m.ListenPlainTelnet("127.0.0.1", 0) {
		t.Fatal("second ListenPlainTelnet call on the same port should be rejected")
	}
	if len(m.listeners) != 1 {
		t.Fatalf("expected exactly one registered listener, got %d", len(m.listeners))
	}
}

// freePort finds an ephemeral TCP port not currently in use, for tests
// that need ListenPlainTelnet to bind a real, dialable address.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestManager_ConnectDispatchesGameMsg(t *testing.T) {
	port := freePort(t)
	m := New()
	if !m.ListenPlainTelnet("127.0.0.1", port) {
		t.Fatal("ListenPlainTelnet failed")
	}
	go m.Run(1)
	defer m.Stop()

	c, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte("hello\r\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var ev Event
	select {
	case ev = <-m.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for EventConnected")
	}
	if ev.Kind != EventConnected {
		t.Fatalf("expected EventConnected, got %v", ev.Kind)
	}

	var conn0 *conn.Connection
	deadline := time.After(2 * time.Second)
	for conn0 == nil {
		ids := m.Connections()
		if len(ids) > 0 {
			conn0 = m.Lookup(ids[0])
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for connection registration")
		default:
		}
	}

	select {
	case msg := <-conn0.Messages():
		if msg.Command != "hello" {
			t.Fatalf("expected command %q, got %q", "hello", msg.Command)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for GameMsg")
	}
}

func TestManager_HandshakeSettleEventFiresWithoutPeerReply(t *testing.T) {
	port := freePort(t)
	m := New()
	if !m.ListenPlainTelnet("127.0.0.1", port) {
		t.Fatal("ListenPlainTelnet failed")
	}
	go m.Run(1)
	defer m.Stop()

	c, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	// Drain and discard anything the server offers (WILL/DO negotiations)
	// without ever replying, simulating a peer that ignores negotiation.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := c.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case ev := <-m.Events():
		if ev.Kind != EventConnected {
			t.Fatalf("expected EventConnected, got %v", ev.Kind)
		}
	case <-time.After(conn.HandshakeSettle + time.Second):
		t.Fatal("EventConnected did not fire within the settle window despite no peer reply")
	}
}

func TestDocument_JSONRoundTripPreservesMTTSState(t *testing.T) {
	doc := &Document{
		Running:    true,
		Generation: "11111111-1111-1111-1111-111111111111",
		Connections: []ConnectionDoc{
			{
				ID: "telnet_AAAAAAAAAA",
				Details: detailsDoc{
					ColorType:  2, // ColorXterm
					ClientName: "MUDLET", ClientVersion: "4.0",
					VT100: true, UTF8: true,
				},
				Options: []optionDoc{
					{
						Code:   telnet.OptTermType,
						Local:  perspectiveDoc{},
						Remote: perspectiveDoc{Enabled: true, Answered: true},
						MTTS:   &mttsDoc{Round: 3, LastValue: "MTTS 15", Done: true},
					},
				},
			},
		},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	got, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}

	if len(got.Connections) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(got.Connections))
	}
	gc := got.Connections[0]
	if gc.Details.ClientName != "MUDLET" || gc.Details.ClientVersion != "4.0" {
		t.Fatalf("client identity not preserved: %+v", gc.Details)
	}
	if gc.Details.ColorType != 2 {
		t.Fatalf("expected ColorType 2 (xterm), got %d", gc.Details.ColorType)
	}
	if len(gc.Options) != 1 || gc.Options[0].MTTS == nil {
		t.Fatalf("MTTS option state not preserved: %+v", gc.Options)
	}
	if gc.Options[0].MTTS.Round != 3 || gc.Options[0].MTTS.LastValue != "MTTS 15" {
		t.Fatalf("MTTS round/value not preserved: %+v", gc.Options[0].MTTS)
	}
	if !gc.Options[0].MTTS.Done {
		t.Fatalf("MTTS done latch not preserved: %+v", gc.Options[0].MTTS)
	}
	if !gc.Options[0].Remote.Enabled || !gc.Options[0].Remote.Answered {
		t.Fatalf("remote perspective not preserved: %+v", gc.Options[0].Remote)
	}
}

