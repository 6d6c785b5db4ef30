package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   Color
		want RGB
	}{
		{"#3b82f6", RGB{0x3b, 0x82, 0xf6}},
		{"#FFFFFF", RGB{0xff, 0xff, 0xff}},
		{"#000000", RGB{0, 0, 0}},
		{"#abc", RGB{0xaa, 0xbb, 0xcc}},
		{"  #ef4444 ", RGB{0xef, 0x44, 0x44}},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := ParseHex(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHexRejectsGarbage(t *testing.T) {
	for _, in := range []Color{"", "#", "#12345", "#gggggg", "red", "#1234567"} {
		t.Run(string(in), func(t *testing.T) {
			_, err := ParseHex(in)
			assert.Error(t, err)
			assert.False(t, Valid(in))
		})
	}
}

func TestPaletteTokensAreValid(t *testing.T) {
	for _, c := range []Color{
		Red500, Amber500, Green500, Blue500, Violet500,
		Slate50, Slate400, Slate700, Slate900,
	} {
		assert.True(t, Valid(c), string(c))
	}
}

func TestANSI256(t *testing.T) {
	tests := []struct {
		in   Color
		want uint8
	}{
		{"#000000", 16},  // cube black
		{"#ffffff", 231}, // cube white
		{"#ff0000", 196}, // pure red hits the cube corner
		{"#00ff00", 46},
		{"#0000ff", 21},
		{"#808080", 244}, // mid gray lands on the gray ramp
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := ANSI256(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSwatchFallsBackOnInvalidColor(t *testing.T) {
	assert.Equal(t, "text", Swatch("nope", "text"))
	assert.Contains(t, Swatch(Accent, "text"), "text")
	assert.Contains(t, Swatch(Accent, "text"), "\x1b[38;5;")
}

func TestEmphasize(t *testing.T) {
	assert.Equal(t, "plain", Emphasize(TextBody, "plain"))
	assert.Contains(t, Emphasize(TextTitle, "t"), "\x1b[1;4m")
	assert.Contains(t, Emphasize(TextHeading, "h"), "\x1b[1m")
}
