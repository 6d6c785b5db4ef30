package console

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"moviesnow/internal/keymap"
)

func TestDecodeInput(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []keymap.Event
	}{
		{"plain letter", []byte("g"), []keymap.Event{{Key: "g"}}},
		{"uppercase carries shift", []byte("G"), []keymap.Event{{Key: "g", Shift: true}}},
		{"question mark", []byte("?"), []keymap.Event{{Key: "?"}}},
		{"slash", []byte("/"), []keymap.Event{{Key: "/"}}},
		{"ctrl-c", []byte{0x03}, []keymap.Event{{Key: "c", Ctrl: true}}},
		{"enter", []byte("\r"), []keymap.Event{{Key: "enter"}}},
		{"tab", []byte("\t"), []keymap.Event{{Key: "tab"}}},
		{"backspace", []byte{0x7f}, []keymap.Event{{Key: "backspace"}}},
		{"space", []byte(" "), []keymap.Event{{Key: "space"}}},
		{"lone escape", []byte{0x1b}, []keymap.Event{{Key: "escape"}}},
		{"arrow up", []byte{0x1b, '[', 'A'}, []keymap.Event{{Key: "up"}}},
		{"arrow left", []byte{0x1b, '[', 'D'}, []keymap.Event{{Key: "left"}}},
		{"alt-letter", []byte{0x1b, 'x'}, []keymap.Event{{Key: "x", Alt: true}}},
		{
			"chord bytes in one read",
			[]byte("gn"),
			[]keymap.Event{{Key: "g"}, {Key: "n"}},
		},
		{
			"unknown csi swallowed",
			[]byte{0x1b, '[', '1', '5', '~', 'g'},
			[]keymap.Event{{Key: "escape"}, {Key: "g"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeInput(tt.in))
		})
	}
}

func TestDecodedEventsDriveChords(t *testing.T) {
	d := keymap.New()
	var last keymap.Action
	for _, ev := range decodeInput([]byte("gn")) {
		last = d.Dispatch(ev, keymap.Context{})
	}
	assert.Equal(t, keymap.ActionNavigate, last.Kind)
	assert.Equal(t, "/notifications", last.Target)
}
