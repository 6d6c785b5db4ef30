package console

import "moviesnow/internal/keymap"

// decodeInput turns a raw terminal read into key events. Escape
// sequences for arrows and alt-modified keys are folded into single
// events; a lone ESC byte is the escape key.
func decodeInput(buf []byte) []keymap.Event {
	events := make([]keymap.Event, 0, len(buf))
	for i := 0; i < len(buf); {
		b := buf[i]

		if b == 0x1b {
			ev, consumed := decodeEscape(buf[i:])
			events = append(events, ev)
			i += consumed
			continue
		}

		if ev, ok := decodeByte(b); ok {
			events = append(events, ev)
		}
		i++
	}
	return events
}

// decodeEscape handles sequences starting with ESC. It returns the event
// and how many bytes it consumed.
func decodeEscape(buf []byte) (keymap.Event, int) {
	if len(buf) == 1 {
		return keymap.Event{Key: "escape"}, 1
	}

	// CSI sequences: ESC [ <final>.
	if buf[1] == '[' && len(buf) >= 3 {
		switch buf[2] {
		case 'A':
			return keymap.Event{Key: "up"}, 3
		case 'B':
			return keymap.Event{Key: "down"}, 3
		case 'C':
			return keymap.Event{Key: "right"}, 3
		case 'D':
			return keymap.Event{Key: "left"}, 3
		}
		// Unknown CSI: swallow through the final byte so garbage never
		// leaks into the key stream.
		for j := 2; j < len(buf); j++ {
			if buf[j] >= 0x40 && buf[j] <= 0x7e {
				return keymap.Event{Key: "escape"}, j + 1
			}
		}
		return keymap.Event{Key: "escape"}, len(buf)
	}

	// ESC + printable: alt-modified key.
	if ev, ok := decodeByte(buf[1]); ok {
		ev.Alt = true
		return ev, 2
	}
	return keymap.Event{Key: "escape"}, 1
}

// decodeByte maps a single byte to an event. Control characters in
// 0x01..0x1a are ctrl+letter; uppercase letters carry Shift with the
// lowercase key, matching how bindings are declared.
func decodeByte(b byte) (keymap.Event, bool) {
	switch b {
	case '\r', '\n':
		return keymap.Event{Key: "enter"}, true
	case '\t':
		return keymap.Event{Key: "tab"}, true
	case 0x7f, 0x08:
		return keymap.Event{Key: "backspace"}, true
	case ' ':
		return keymap.Event{Key: "space"}, true
	}

	if b >= 0x01 && b <= 0x1a {
		return keymap.Event{Key: string('a' + rune(b) - 1), Ctrl: true}, true
	}
	if b >= 'A' && b <= 'Z' {
		return keymap.Event{Key: string(b - 'A' + 'a'), Shift: true}, true
	}
	if b >= 0x21 && b <= 0x7e {
		return keymap.Event{Key: string(b)}, true
	}
	return keymap.Event{}, false
}
