package telnet

import "bytes"

// ParseMessage extracts at most one Message from the start of buf. If buf
// does not yet hold a complete message, ok is false and n is meaningless;
// the caller must retain buf unchanged and retry once more bytes arrive.
// On ok == true, n is exactly the number of leading bytes of buf the
// message consumed and the caller should discard them.
//
// ParseMessage carries no state of its own: every fact it needs to decide
// completeness is present in buf, which is what makes it safe to call
// again and again as a stream grows one byte at a time and still see the
// same sequence of messages as calling it once on the whole buffer.
func ParseMessage(buf []byte) (msg Message, n int, ok bool) {
	if len(buf) == 0 {
		return Message{}, 0, false
	}

	if buf[0] != IAC {
		end := bytes.IndexByte(buf, IAC)
		if end == -1 {
			end = len(buf)
		}
		return Message{Kind: KindAppData, Bytes: append([]byte(nil), buf[:end]...)}, end, true
	}

	if len(buf) < 2 {
		return Message{}, 0, false
	}

	switch buf[1] {
	case WILL, WONT, DO, DONT:
		if len(buf) < 3 {
			return Message{}, 0, false
		}
		return Message{Kind: KindNegotiation, Verb: buf[1], Option: buf[2]}, 3, true

	case SB:
		if len(buf) < 5 {
			return Message{}, 0, false
		}
		opt := buf[2]
		payload, consumed, found := scanSubnegotiation(buf[3:])
		if !found {
			return Message{}, 0, false
		}
		return Message{Kind: KindSubnegotiation, Option: opt, Payload: payload}, 3 + consumed, true

	default:
		return Message{Kind: KindCommand, Code: buf[1]}, 2, true
	}
}

// scanSubnegotiation looks for the unescaped IAC SE terminator in buf,
// returning the un-escaped payload bytes preceding it and the number of
// raw bytes consumed (payload plus the two-byte terminator). IAC IAC is an
// escaped literal 0xFF and does not terminate the subnegotiation.
func scanSubnegotiation(buf []byte) (payload []byte, consumed int, found bool) {
	var out []byte
	i := 0
	for i < len(buf) {
		if buf[i] != IAC {
			out = append(out, buf[i])
			i++
			continue
		}
		// buf[i] == IAC
		if i+1 >= len(buf) {
			return nil, 0, false
		}
		if buf[i+1] == IAC {
			out = append(out, IAC)
			i += 2
			continue
		}
		if buf[i+1] == SE {
			return out, i + 2, true
		}
		// IAC followed by something other than IAC or SE inside a
		// subnegotiation is not valid framing; treat it as literal data
		// and keep scanning rather than desynchronizing the stream.
		out = append(out, buf[i])
		i++
	}
	return nil, 0, false
}

// EscapeIAC doubles every 0xFF byte in data, as required before placing
// arbitrary binary data inside a subnegotiation payload.
func EscapeIAC(data []byte) []byte {
	if bytes.IndexByte(data, IAC) == -1 {
		return data
	}
	out := make([]byte, 0, len(data)+4)
	for _, b := range data {
		out = append(out, b)
		if b == IAC {
			out = append(out, IAC)
		}
	}
	return out
}
