package telnet

import (
	"bytes"
	"testing"
)

func parseAll(t *testing.T, buf []byte) []Message {
	t.Helper()
	var msgs []Message
	for len(buf) > 0 {
		msg, n, ok := ParseMessage(buf)
		if !ok {
			t.Fatalf("ParseMessage did not make progress on remaining %v", buf)
		}
		msgs = append(msgs, msg)
		buf = buf[n:]
	}
	return msgs
}

func TestParseMessage_AppData(t *testing.T) {
	msg, n, ok := ParseMessage([]byte("hello"))
	if !ok || n != 5 || msg.Kind != KindAppData || string(msg.Bytes) != "hello" {
		t.Fatalf("got %+v, n=%d, ok=%v", msg, n, ok)
	}
}

func TestParseMessage_Negotiation(t *testing.T) {
	msg, n, ok := ParseMessage([]byte{IAC, DO, OptNAWS})
	if !ok || n != 3 {
		t.Fatalf("ok=%v n=%d", ok, n)
	}
	if msg.Kind != KindNegotiation || msg.Verb != DO || msg.Option != OptNAWS {
		t.Fatalf("got %+v", msg)
	}
}

func TestParseMessage_Command(t *testing.T) {
	msg, n, ok := ParseMessage([]byte{IAC, NOP})
	if !ok || n != 2 || msg.Kind != KindCommand || msg.Code != NOP {
		t.Fatalf("got %+v n=%d ok=%v", msg, n, ok)
	}
}

func TestParseMessage_IncompleteReturnsNotOK(t *testing.T) {
	cases := [][]byte{
		{IAC},
		{IAC, DO},
		{IAC, SB, OptGMCP},
		{IAC, SB, OptGMCP, 'x', IAC},
	}
	for _, c := range cases {
		_, n, ok := ParseMessage(c)
		if ok {
			t.Errorf("expected not-ok for %v", c)
		}
		if n != 0 {
			t.Errorf("expected n=0 for incomplete %v, got %d", c, n)
		}
	}
}

func TestParseMessage_SubnegotiationEscapedIAC(t *testing.T) {
	buf := []byte{IAC, SB, OptGMCP, 'x', IAC, IAC, 'y', IAC, SE}
	msg, n, ok := ParseMessage(buf)
	if !ok || n != len(buf) {
		t.Fatalf("ok=%v n=%d", ok, n)
	}
	if msg.Kind != KindSubnegotiation || msg.Option != OptGMCP {
		t.Fatalf("got %+v", msg)
	}
	want := []byte{'x', IAC, 'y'}
	if !bytes.Equal(msg.Payload, want) {
		t.Fatalf("payload = %v, want %v", msg.Payload, want)
	}
}

func TestParseMessage_AppDataNeverContainsIAC(t *testing.T) {
	msg, _, ok := ParseMessage([]byte("abc\xffmore"))
	if !ok {
		t.Fatal("expected ok")
	}
	if bytes.IndexByte(msg.Bytes, IAC) != -1 {
		t.Fatalf("AppData contains IAC: %v", msg.Bytes)
	}
}

func TestParseMessage_ResumabilityByteAtATime(t *testing.T) {
	full := []byte{'h', 'i', IAC, SB, OptGMCP, 'a', IAC, IAC, 'b', IAC, SE, 'z', IAC, WILL, OptSGA}

	whole := parseAll(t, append([]byte(nil), full...))

	// Feed byte by byte into a growing buffer, re-parsing the unconsumed
	// remainder after every new byte, and collect messages as they become
	// available. The resulting sequence must match parsing the full buffer
	// at once.
	var streamed []Message
	var pending []byte
	for _, b := range full {
		pending = append(pending, b)
		for {
			msg, n, ok := ParseMessage(pending)
			if !ok {
				break
			}
			streamed = append(streamed, msg)
			pending = pending[n:]
		}
	}
	if len(pending) != 0 {
		t.Fatalf("leftover unparsed bytes: %v", pending)
	}

	if len(whole) != len(streamed) {
		t.Fatalf("message count mismatch: whole=%d streamed=%d", len(whole), len(streamed))
	}
	for i := range whole {
		a, b := whole[i], streamed[i]
		if a.Kind != b.Kind || a.Verb != b.Verb || a.Option != b.Option || a.Code != b.Code ||
			!bytes.Equal(a.Bytes, b.Bytes) || !bytes.Equal(a.Payload, b.Payload) {
			t.Fatalf("message %d differs: whole=%+v streamed=%+v", i, a, b)
		}
	}
}

func TestEscapeIAC(t *testing.T) {
	in := []byte{'a', IAC, 'b'}
	out := EscapeIAC(in)
	want := []byte{'a', IAC, IAC, 'b'}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
	// No IAC present: returned slice may alias the input.
	if got := EscapeIAC([]byte("plain")); string(got) != "plain" {
		t.Fatalf("got %q", got)
	}
}
