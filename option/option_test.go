package option

import (
	"testing"

	"github.com/oakmoss/telnetcore/telnet"
)

type recordingHooks struct {
	enabledLocal, disabledLocal   []byte
	enabledRemote, disabledRemote []byte
}

func (h *recordingHooks) EnableLocal(code byte)   { h.enabledLocal = append(h.enabledLocal, code) }
func (h *recordingHooks) DisableLocal(code byte)  { h.disabledLocal = append(h.disabledLocal, code) }
func (h *recordingHooks) EnableRemote(code byte)  { h.enabledRemote = append(h.enabledRemote, code) }
func (h *recordingHooks) DisableRemote(code byte) { h.disabledRemote = append(h.disabledRemote, code) }

func TestNegotiate_UnknownOption(t *testing.T) {
	tbl := NewTable()
	h := &recordingHooks{}

	reply := tbl.Negotiate(telnet.WILL, 99, h)
	if reply == nil || reply.Verb != telnet.DONT || reply.Option != 99 {
		t.Fatalf("got %+v", reply)
	}

	reply = tbl.Negotiate(telnet.DO, 99, h)
	if reply == nil || reply.Verb != telnet.WONT || reply.Option != 99 {
		t.Fatalf("got %+v", reply)
	}

	if reply := tbl.Negotiate(telnet.WONT, 99, h); reply != nil {
		t.Fatalf("expected no reply to WONT for unknown option, got %+v", reply)
	}
	if reply := tbl.Negotiate(telnet.DONT, 99, h); reply != nil {
		t.Fatalf("expected no reply to DONT for unknown option, got %+v", reply)
	}
	if len(h.enabledLocal) != 0 || len(h.enabledRemote) != 0 {
		t.Fatalf("unknown option must never mutate state: %+v", h)
	}
}

func TestNegotiate_BothInitiatedAndPeerInitiated(t *testing.T) {
	// GMCP: SupportLocal=true, StartWill=true.
	for _, order := range []string{"we-will-they-do", "they-do-we-will"} {
		tbl := NewTable()
		h := &recordingHooks{}

		if order == "we-will-they-do" {
			start := tbl.Start()
			_ = start // IAC WILL GMCP sent, Local.Negotiating=true
			reply := tbl.Negotiate(telnet.DO, telnet.OptGMCP, h)
			if reply != nil {
				t.Fatalf("expected no reply once we already offered WILL, got %+v", reply)
			}
		} else {
			reply := tbl.Negotiate(telnet.DO, telnet.OptGMCP, h)
			if reply == nil || reply.Verb != telnet.WILL {
				t.Fatalf("expected WILL reply, got %+v", reply)
			}
		}

		opt := tbl.Get(telnet.OptGMCP)
		if !opt.Local.Enabled || opt.Local.Negotiating || !opt.Local.Answered {
			t.Fatalf("order=%s: unexpected local state %+v", order, opt.Local)
		}
		if len(h.enabledLocal) != 1 || h.enabledLocal[0] != telnet.OptGMCP {
			t.Fatalf("order=%s: expected EnableLocal hook, got %+v", order, h.enabledLocal)
		}
	}
}

func TestNegotiate_WontDisablesEnabledRemote(t *testing.T) {
	tbl := NewTable()
	h := &recordingHooks{}

	tbl.Start() // sends DO NAWS, Remote.Negotiating=true for NAWS
	reply := tbl.Negotiate(telnet.WILL, telnet.OptNAWS, h)
	if reply != nil {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if !tbl.Get(telnet.OptNAWS).Remote.Enabled {
		t.Fatal("expected NAWS remote enabled")
	}

	tbl.Negotiate(telnet.WONT, telnet.OptNAWS, h)
	opt := tbl.Get(telnet.OptNAWS)
	if opt.Remote.Enabled {
		t.Fatal("expected NAWS remote disabled after WONT")
	}
	if len(h.disabledRemote) != 1 {
		t.Fatalf("expected DisableRemote hook, got %+v", h.disabledRemote)
	}
}
