package option

import (
	"strconv"
	"strings"

	"github.com/oakmoss/telnetcore/telnet"
)

// MTTSState is the per-connection progress of the three-round MUD
// Terminal Type Standard dialog, which rides on the TERMINAL-TYPE option
// (24) once it is enabled remote-to-local.
type MTTSState struct {
	Round     int
	LastValue string
	done      bool
}

// mttsColorClients upgrade ColorType to ColorXterm on round 0 regardless
// of what round 1/2 report, per the MTTS convention that these clients are
// known to support at least xterm-256 color even when their reported
// terminal type says otherwise.
var mttsColorClients = map[string]bool{
	"ATLANTIS":   true,
	"CMUD":       true,
	"KILDCLIENT": true,
	"MUDLET":     true,
	"PUTTY":      true,
	"BEIP":       true,
	"POTATO":     true,
	"TINYFUGUE":  true,
	"MUSHCLIENT": true,
}

// Done reports whether the dialog has latched terminal — either after
// three rounds or an early repeated-value signal — and should not be
// resumed with another round request.
func (s MTTSState) Done() bool { return s.done }

// SetDone restores the latched state of a previously serialized dialog.
// Used when recovering a connection from a copyover document, where the
// unexported done flag would otherwise be lost.
func (s *MTTSState) SetDone(done bool) { s.done = done }

// StartMTTS returns the subnegotiation bytes requesting the next round of
// the MTTS dialog: IAC SB TERMINAL-TYPE SEND IAC SE.
func StartMTTS() Outbound {
	return Outbound{Subnegotiation: true, Option: telnet.OptTermType, Payload: []byte{0x01}}
}

// HandleMTTS processes one TERMINAL-TYPE subnegotiation payload, mutating
// details according to its round, and reports whether another round
// should be requested.
//
// Payloads begin with a status byte (0x00 "IS"); any other leading byte
// is ignored rather than rejected, since real clients vary here. The
// dialog terminates early when a round repeats the previous value, which
// is how a client signals it has cycled through everything it has to
// offer.
func HandleMTTS(state *MTTSState, payload []byte, details *ClientDetails) (requestNext bool) {
	if state.done {
		return false
	}

	value := payload
	if len(value) > 0 && value[0] == 0x00 {
		value = value[1:]
	}
	text := strings.ToUpper(strings.TrimSpace(string(value)))

	if state.Round > 0 && text == state.LastValue {
		state.done = true
		return false
	}
	state.LastValue = text

	switch state.Round {
	case 0:
		applyMTTSRound0(text, details)
	case 1:
		applyMTTSRound1(text, details)
	case 2:
		applyMTTSRound2(text, details)
	default:
		state.done = true
		return false
	}

	state.Round++
	if state.Round >= 3 {
		state.done = true
		return false
	}
	return true
}

func applyMTTSRound0(text string, details *ClientDetails) {
	name := text
	version := ""
	if i := strings.IndexByte(text, ' '); i != -1 {
		name, version = text[:i], text[i+1:]
	}
	details.ClientName = name
	details.ClientVersion = version

	details.raiseColor(ColorStandard)
	if mttsColorClients[name] {
		details.raiseColor(ColorXterm)
	}
}

func applyMTTSRound1(text string, details *ClientDetails) {
	termType, extra, _ := strings.Cut(text, "-")

	switch termType {
	case "ANSI":
		details.raiseColor(ColorStandard)
	case "VT100":
		details.raiseColor(ColorStandard)
		details.VT100 = true
	case "XTERM":
		details.raiseColor(ColorXterm)
		details.VT100 = true
	}

	switch extra {
	case "256COLOR":
		details.raiseColor(ColorXterm)
	case "TRUECOLOR":
		details.raiseColor(ColorTrueColor)
	}
}

func applyMTTSRound2(text string, details *ClientDetails) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return
	}
	bits, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return
	}

	const (
		bitANSI = 1 << iota
		bitVT100
		bitUTF8
		bitXterm256
		bitMouseTracking
		bitOSCColorPalette
		bitScreenReader
		bitProxy
		bitTrueColor
		bitMNES
		bitMSLP
	)

	if bits&bitANSI != 0 {
		details.raiseColor(ColorStandard)
	}
	if bits&bitVT100 != 0 {
		details.VT100 = true
	}
	if bits&bitUTF8 != 0 {
		details.UTF8 = true
	}
	if bits&bitXterm256 != 0 {
		details.raiseColor(ColorXterm)
	}
	if bits&bitMouseTracking != 0 {
		details.MouseTracking = true
	}
	if bits&bitOSCColorPalette != 0 {
		details.OSCColorPalette = true
	}
	if bits&bitScreenReader != 0 {
		details.ScreenReader = true
	}
	if bits&bitProxy != 0 {
		details.Proxy = true
	}
	if bits&bitTrueColor != 0 {
		details.raiseColor(ColorTrueColor)
	}
	if bits&bitMNES != 0 {
		details.MNES = true
	}
	if bits&bitMSLP != 0 {
		details.MSLP = true
	}
}
