// Package theme is the single authoritative design-token set: the
// palette, semantic color roles, spacing and type scales, plus an
// adapter from hex colors to ANSI-256 terminal codes.
package theme

import (
	"fmt"
	"strings"

	"moviesnow/pkg/apierror"
)

// Color is an #rrggbb hex color.
type Color string

// Palette tokens.
const (
	Red500    Color = "#ef4444"
	Amber500  Color = "#f59e0b"
	Green500  Color = "#22c55e"
	Blue500   Color = "#3b82f6"
	Violet500 Color = "#8b5cf6"
	Slate50   Color = "#f8fafc"
	Slate400  Color = "#94a3b8"
	Slate700  Color = "#334155"
	Slate900  Color = "#0f172a"
)

// Semantic roles, mapped onto the palette.
const (
	Accent  = Violet500
	Surface = Slate900
	Border  = Slate700
	Text    = Slate50
	Muted   = Slate400
	Danger  = Red500
	Warning = Amber500
	Success = Green500
	Info    = Blue500
)

// Spacing scale in terminal cells.
var Spacing = [...]int{0, 1, 2, 3, 4, 6, 8, 12}

// TypeScale names the text sizes the console renders. Terminals have one
// glyph size, so the scale degrades to emphasis levels.
type TypeScale int

const (
	TextBody TypeScale = iota
	TextCaption
	TextHeading
	TextTitle
)

// RGB is a decoded color.
type RGB struct {
	R, G, B uint8
}

// ParseHex decodes an #rrggbb (or #rgb shorthand) color.
func ParseHex(c Color) (RGB, error) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(string(c))), "#")
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return RGB{}, apierror.New(apierror.CodeValidation, fmt.Sprintf("invalid hex color %q", string(c)))
	}

	var rgb RGB
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &rgb.R, &rgb.G, &rgb.B); err != nil {
		return RGB{}, apierror.New(apierror.CodeValidation, fmt.Sprintf("invalid hex color %q", string(c)))
	}
	return rgb, nil
}

// Valid reports whether c parses as a hex color.
func Valid(c Color) bool {
	_, err := ParseHex(c)
	return err == nil
}

// ANSI256 maps the color onto the 256-color terminal palette: the 6x6x6
// color cube for chromatic colors, the 24-step gray ramp for near-grays.
func ANSI256(c Color) (uint8, error) {
	rgb, err := ParseHex(c)
	if err != nil {
		return 0, err
	}

	r, g, b := int(rgb.R), int(rgb.G), int(rgb.B)

	// Near-gray colors land better on the dedicated gray ramp.
	if maxDiff(r, g, b) < 24 {
		gray := (r + g + b) / 3
		switch {
		case gray < 8:
			return 16, nil // cube black
		case gray > 238:
			return 231, nil // cube white
		default:
			return uint8(232 + (gray-8)/10), nil
		}
	}

	return uint8(16 + 36*scale6(r) + 6*scale6(g) + scale6(b)), nil
}

// scale6 maps one 0-255 channel onto the cube's 0-5 steps
// (0, 95, 135, 175, 215, 255).
func scale6(v int) int {
	if v < 48 {
		return 0
	}
	if v < 115 {
		return 1
	}
	return (v - 35) / 40
}

func maxDiff(r, g, b int) int {
	lo, hi := r, r
	for _, v := range []int{g, b} {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// Swatch renders text in the given color using ANSI escape codes, falling
// back to the unstyled text for invalid colors.
func Swatch(c Color, text string) string {
	code, err := ANSI256(c)
	if err != nil {
		return text
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, text)
}

// Emphasize styles text per the type scale.
func Emphasize(scale TypeScale, text string) string {
	switch scale {
	case TextTitle:
		return "\x1b[1;4m" + text + "\x1b[0m"
	case TextHeading:
		return "\x1b[1m" + text + "\x1b[0m"
	case TextCaption:
		return "\x1b[2m" + text + "\x1b[0m"
	default:
		return text
	}
}
