package telnetcore

import (
	"encoding/json"
	"fmt"

	"github.com/oakmoss/telnetcore/option"
)

// Document is the portable snapshot produced by Copyover and consumed by
// Recover. Every field is JSON-serializable on its own; byte buffers are
// base64 (RFC 4648, standard alphabet with padding) to match the
// original implementation's cppcodec::base64_rfc4648 encoding.
//
// Document, and the encode/decode helpers around it, are available on
// every platform even though producing or consuming one (Copyover,
// Recover) is POSIX-only: an embedder cross-compiling for Windows should
// still be able to parse a document shipped from a POSIX build, even if
// it can't act on the fd fields.
type Document struct {
	NextID     string `json:"nextId,omitempty"`
	Running    bool   `json:"running"`
	Generation string `json:"generation"`

	PlainTelnetListeners []ListenerDoc   `json:"plainTelnetListeners"`
	Connections          []ConnectionDoc `json:"connections"`
}

// ListenerDoc captures one plain-Telnet listener's inheritable state.
type ListenerDoc struct {
	Port     int     `json:"port"`
	FD       uintptr `json:"fd"`
	Protocol int     `json:"protocol"` // 4 or 6
}

// ConnectionDoc captures one connection's negotiated state and buffered
// bytes, enough to resume it without re-running the handshake.
type ConnectionDoc struct {
	ID        string      `json:"conn_id"`
	Details   detailsDoc  `json:"details"`
	AppData   string      `json:"app_data"`
	Options   []optionDoc `json:"handlers"`
	InBuffer  string      `json:"in_buffer"`  // base64
	OutBuffer string      `json:"out_buffer"` // base64
	FD        uintptr     `json:"fd"`
	Protocol  int         `json:"protocol"`
}

type detailsDoc struct {
	Transport       int    `json:"transport"`
	ColorType       int    `json:"colorType"`
	ClientName      string `json:"clientName"`
	ClientVersion   string `json:"clientVersion"`
	HostIP          string `json:"hostIp"`
	HostName        string `json:"hostName"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	UTF8            bool   `json:"utf8"`
	ScreenReader    bool   `json:"screen_reader"`
	VT100           bool   `json:"vt100"`
	NAWS            bool   `json:"naws"`
	MSDP            bool   `json:"msdp"`
	GMCP            bool   `json:"gmcp"`
	MSSP            bool   `json:"mssp"`
	MXP             bool   `json:"mxp"`
	SuppressGA      bool   `json:"suppress_ga"`
	TelOptEOR       bool   `json:"telopt_eor"`
	MouseTracking   bool   `json:"mouse_tracking"`
	OSCColorPalette bool   `json:"osc_color_palette"`
	Proxy           bool   `json:"proxy"`
	MNES            bool   `json:"mnes"`
	MSLP            bool   `json:"mslp"`
}

type perspectiveDoc struct {
	Enabled     bool `json:"enabled"`
	Negotiating bool `json:"negotiating"`
	Answered    bool `json:"answered"`
}

type optionDoc struct {
	Code   byte           `json:"code"`
	Local  perspectiveDoc `json:"local"`
	Remote perspectiveDoc `json:"remote"`
	MTTS   *mttsDoc       `json:"mtts,omitempty"`
}

type mttsDoc struct {
	Round     int    `json:"round"`
	LastValue string `json:"lastValue"`
	Done      bool   `json:"done"`
}

func toDetailsDoc(d *option.ClientDetails) detailsDoc {
	return detailsDoc{
		Transport: int(d.Transport), ColorType: int(d.ColorType),
		ClientName: d.ClientName, ClientVersion: d.ClientVersion,
		HostIP: d.HostIP, HostName: d.HostName,
		Width: d.Width, Height: d.Height,
		UTF8: d.UTF8, ScreenReader: d.ScreenReader, VT100: d.VT100,
		NAWS: d.NAWS, MSDP: d.MSDP, GMCP: d.GMCP, MSSP: d.MSSP, MXP: d.MXP,
		SuppressGA: d.SuppressGA, TelOptEOR: d.TelOptEOR,
		MouseTracking: d.MouseTracking, OSCColorPalette: d.OSCColorPalette,
		Proxy: d.Proxy, MNES: d.MNES, MSLP: d.MSLP,
	}
}

func fromDetailsDoc(dd detailsDoc) *option.ClientDetails {
	return &option.ClientDetails{
		Transport: option.TransportKind(dd.Transport), ColorType: option.ColorType(dd.ColorType),
		ClientName: dd.ClientName, ClientVersion: dd.ClientVersion,
		HostIP: dd.HostIP, HostName: dd.HostName,
		Width: dd.Width, Height: dd.Height,
		UTF8: dd.UTF8, ScreenReader: dd.ScreenReader, VT100: dd.VT100,
		NAWS: dd.NAWS, MSDP: dd.MSDP, GMCP: dd.GMCP, MSSP: dd.MSSP, MXP: dd.MXP,
		SuppressGA: dd.SuppressGA, TelOptEOR: dd.TelOptEOR,
		MouseTracking: dd.MouseTracking, OSCColorPalette: dd.OSCColorPalette,
		Proxy: dd.Proxy, MNES: dd.MNES, MSLP: dd.MSLP,
	}
}

// ParseDocument decodes a Document previously produced by Copyover. The
// embedder is responsible for writing/reading the bytes to whatever
// storage it chooses (a file, shared memory, an env var); this package
// never touches disk itself.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse copyover document: %w", err)
	}
	return &doc, nil
}
