package theme

import (
	"os"
	"strings"
)

// symbolSet is one complete choice of UI glyphs.
type symbolSet struct {
	errorMark, pending, arrowR, arrowDown, bullet, ellipsis string
}

var unicodeSymbols = symbolSet{
	errorMark: "\u2717", // ✗
	pending:   "\u25CC", // ◌
	arrowR:    "\u2192", // →
	arrowDown: "\u2193", // ↓
	bullet:    "\u2022", // •
	ellipsis:  "\u2026", // …
}

var asciiSymbols = symbolSet{
	errorMark: "x",
	pending:   "(sending)",
	arrowR:    ">",
	arrowDown: "v",
	bullet:    "*",
	ellipsis:  "...",
}

// UnicodeSupported reports whether glyphs outside ASCII should be used.
// CHATSTREAM_ASCII_SYMBOLS=1 forces ASCII; otherwise a non-UTF-8 locale
// such as LANG=C selects it.
func UnicodeSupported() bool {
	if v := os.Getenv("CHATSTREAM_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		// The first locale variable that is set decides.
		return strings.Contains(val, "utf-8") || strings.Contains(val, "utf8")
	}
	return true
}

// InitSymbols picks the glyph set for the current environment. Tests may
// call it again after changing the environment.
func InitSymbols() {
	set := unicodeSymbols
	if !UnicodeSupported() {
		set = asciiSymbols
	}
	SymbolError = set.errorMark
	SymbolPending = set.pending
	SymbolArrowR = set.arrowR
	SymbolArrowDown = set.arrowDown
	SymbolBullet = set.bullet
	SymbolEllipsis = set.ellipsis
}

func init() {
	InitSymbols()
}
