// Package option implements the per-connection Telnet option negotiation
// state machine: WILL/WONT/DO/DONT handshake transitions for a fixed
// catalog of MUD-extended options, plus option-specific subnegotiation
// handlers (MTTS terminal capability discovery).
package option

import "github.com/oakmoss/telnetcore/telnet"

// Perspective tracks one side's (local or remote) negotiation state for a
// single option.
type Perspective struct {
	Enabled     bool
	Negotiating bool
	Answered    bool
}

// Policy describes how this side of a connection treats one option code,
// independent of any live negotiation state.
type Policy struct {
	Code byte

	// StartWill: offer this option to the peer unsolicited on connect
	// (send IAC WILL code).
	StartWill bool
	// StartDo: request this option from the peer unsolicited on connect
	// (send IAC DO code).
	StartDo bool
	// SupportRemote: accept the peer offering this option (WILL).
	SupportRemote bool
	// SupportLocal: accept the peer requesting this option (DO).
	SupportLocal bool
}

// Catalog is the fixed set of options this package negotiates. Any option
// code not present here is rejected outright by Table.Negotiate.
var Catalog = []Policy{
	{Code: telnet.OptMSSP, StartWill: true, SupportLocal: true},
	{Code: telnet.OptSGA, StartWill: true, SupportLocal: true},
	{Code: telnet.OptMSDP, StartWill: true, SupportLocal: true},
	{Code: telnet.OptGMCP, StartWill: true, SupportLocal: true},
	{Code: telnet.OptNAWS, StartDo: true, SupportRemote: true},
	{Code: telnet.OptTermType, StartDo: true, SupportRemote: true}, // MTTS rides on TERMINAL-TYPE (24)
}

// Option is one entry of a connection's live negotiation state: its
// policy plus both perspectives plus any option-specific payload state.
type Option struct {
	Policy Policy
	Local  Perspective
	Remote Perspective

	MTTS MTTSState
}

// Table is a connection's complete set of live option state, keyed by
// option code.
type Table struct {
	options map[byte]*Option
}

// NewTable builds a Table seeded from Catalog.
func NewTable() *Table {
	t := &Table{options: make(map[byte]*Option, len(Catalog))}
	for _, p := range Catalog {
		t.options[p.Code] = &Option{Policy: p}
	}
	return t
}

// Get returns the live state for code, or nil if code is not in the
// catalog.
func (t *Table) Get(code byte) *Option {
	return t.options[code]
}

// SnapshotPolicies returns the policy of every option in the table, in an
// arbitrary but stable-for-the-life-of-the-table order. Used by copyover
// serialization to enumerate what to save without exposing the internal
// map.
func (t *Table) SnapshotPolicies() []Policy {
	out := make([]Policy, 0, len(t.options))
	for _, p := range Catalog {
		if _, ok := t.options[p.Code]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Outbound is a byte sequence the state machine wants written to the
// peer: a 3-byte negotiation (IAC verb code) or a subnegotiation.
type Outbound struct {
	Negotiation bool
	Verb        byte
	Option      byte

	Subnegotiation bool
	Payload        []byte // option code is Option above
}

// Hooks lets the caller react to capability changes driven by
// negotiation outcomes (used to mutate ClientDetails).
type Hooks interface {
	EnableLocal(code byte)
	DisableLocal(code byte)
	EnableRemote(code byte)
	DisableRemote(code byte)
}

// SuppressNegotiation marks every catalog entry as already answered and
// disabled, without sending or expecting any WILL/WONT/DO/DONT bytes.
// Transports that don't carry in-band Telnet framing (SSH foremost among
// them) use this instead of Start so nothing ever treats the option table
// as still negotiating.
func (t *Table) SuppressNegotiation() {
	for _, opt := range t.options {
		opt.Local = Perspective{Answered: true}
		opt.Remote = Perspective{Answered: true}
	}
}

// Start computes the initial outbound negotiations to send when a
// connection begins: IAC WILL for every StartWill option and IAC DO for
// every StartDo option.
func (t *Table) Start() []Outbound {
	var out []Outbound
	for _, opt := range t.options {
		if opt.Policy.StartWill {
			opt.Local.Negotiating = true
			out = append(out, Outbound{Negotiation: true, Verb: telnet.WILL, Option: opt.Policy.Code})
		}
		if opt.Policy.StartDo {
			opt.Remote.Negotiating = true
			out = append(out, Outbound{Negotiation: true, Verb: telnet.DO, Option: opt.Policy.Code})
		}
	}
	return out
}

// Negotiate applies one received WILL/WONT/DO/DONT and returns any reply
// that must be sent. hooks may be nil.
func (t *Table) Negotiate(verb, code byte, hooks Hooks) *Outbound {
	opt := t.options[code]

	switch verb {
	case telnet.WILL:
		if opt == nil || !opt.Policy.SupportRemote {
			return &Outbound{Negotiation: true, Verb: telnet.DONT, Option: code}
		}
		if opt.Remote.Negotiating {
			opt.Remote.Negotiating = false
			if !opt.Remote.Enabled {
				opt.Remote.Enabled = true
				if hooks != nil {
					hooks.EnableRemote(code)
				}
			}
			opt.Remote.Answered = true
			return nil
		}
		opt.Remote.Enabled = true
		opt.Remote.Answered = true
		if hooks != nil {
			hooks.EnableRemote(code)
		}
		return &Outbound{Negotiation: true, Verb: telnet.DO, Option: code}

	case telnet.DO:
		if opt == nil || !opt.Policy.SupportLocal {
			return &Outbound{Negotiation: true, Verb: telnet.WONT, Option: code}
		}
		if opt.Local.Negotiating {
			opt.Local.Negotiating = false
			if !opt.Local.Enabled {
				opt.Local.Enabled = true
				if hooks != nil {
					hooks.EnableLocal(code)
				}
			}
			opt.Local.Answered = true
			return nil
		}
		opt.Local.Enabled = true
		opt.Local.Answered = true
		if hooks != nil {
			hooks.EnableLocal(code)
		}
		return &Outbound{Negotiation: true, Verb: telnet.WILL, Option: code}

	case telnet.WONT:
		if opt == nil {
			return nil
		}
		if opt.Remote.Enabled {
			opt.Remote.Enabled = false
			if hooks != nil {
				hooks.DisableRemote(code)
			}
		}
		opt.Remote.Negotiating = false
		opt.Remote.Answered = true
		return nil

	case telnet.DONT:
		if opt == nil {
			return nil
		}
		if opt.Local.Enabled {
			opt.Local.Enabled = false
			if hooks != nil {
				hooks.DisableLocal(code)
			}
		}
		opt.Local.Negotiating = false
		opt.Local.Answered = true
		return nil
	}

	return nil
}
