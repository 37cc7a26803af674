package option

import "testing"

func TestHandleMTTS_ThreeRoundDialog(t *testing.T) {
	state := &MTTSState{}
	details := &ClientDetails{}

	if next := HandleMTTS(state, []byte("\x00MUDLET 4.0"), details); !next {
		t.Fatal("expected round 0 to request another round")
	}
	if details.ClientName != "MUDLET" || details.ClientVersion != "4.0" {
		t.Fatalf("got name=%q version=%q", details.ClientName, details.ClientVersion)
	}
	if details.ColorType != ColorXterm {
		t.Fatalf("expected Xterm upgrade for known client, got %v", details.ColorType)
	}

	if next := HandleMTTS(state, []byte("\x00XTERM-256COLOR"), details); !next {
		t.Fatal("expected round 1 to request another round")
	}
	if !details.VT100 {
		t.Fatal("expected VT100 after XTERM round")
	}

	if next := HandleMTTS(state, []byte("\x00MTTS 15"), details); next {
		t.Fatal("round 2 is the last round, expected no further request")
	}
	if details.ColorType != ColorXterm {
		t.Fatalf("expected ColorType to remain at least Xterm, got %v", details.ColorType)
	}
	if !details.UTF8 {
		t.Fatal("expected UTF8 bit to be set")
	}
}

func TestHandleMTTS_RepeatedValueTerminatesEarly(t *testing.T) {
	state := &MTTSState{}
	details := &ClientDetails{}

	HandleMTTS(state, []byte("\x00PUTTY"), details)
	if next := HandleMTTS(state, []byte("\x00PUTTY"), details); next {
		t.Fatal("expected dialog to terminate when a round repeats the previous value")
	}
}

func TestHandleMTTS_NoUpgradeBelowStandardWithoutKnownClient(t *testing.T) {
	state := &MTTSState{}
	details := &ClientDetails{}
	HandleMTTS(state, []byte("\x00SOMEUNKNOWNCLIENT"), details)
	if details.ColorType != ColorStandard {
		t.Fatalf("expected baseline Standard upgrade, got %v", details.ColorType)
	}
}
