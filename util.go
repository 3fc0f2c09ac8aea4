package main

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// GenerateUUID returns a random v4 UUID string, used for session ids
func GenerateUUID() string {
	return uuid.NewString()
}

// ClampInt restricts v to [min, max]
func ClampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Chebyshev returns the grid distance between two tiles when diagonal steps
// cost the same as straight ones.
func Chebyshev(x1, y1, x2, y2 int) int {
	dx := absInt(x2 - x1)
	dy := absInt(y2 - y1)
	if dx > dy {
		return dx
	}
	return dy
}

// SanitizeName normalizes a display name: NFC, no control or format runes,
// collapsed whitespace, at most maxRunes runes. Empty results fall back to def.
func SanitizeName(name string, maxRunes int, def string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	b.Grow(len(name))
	lastSpace := true
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			if lastSpace {
				continue
			}
			b.WriteRune(' ')
			lastSpace = true
			continue
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), !unicode.IsPrint(r):
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	out := strings.TrimSpace(b.String())
	if utf8.RuneCountInString(out) > maxRunes {
		out = strings.TrimSpace(string([]rune(out)[:maxRunes]))
	}
	if out == "" {
		return def
	}
	return out
}
