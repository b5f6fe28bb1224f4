package theme

import (
	"strings"
	"testing"

	"chatstream/internal/domain"
)

func TestInitSymbols_ASCIIOverride(t *testing.T) {
	// Registered first so it runs after the variable is restored.
	t.Cleanup(InitSymbols)
	t.Setenv("CHATSTREAM_ASCII_SYMBOLS", "1")
	InitSymbols()

	if SymbolEllipsis != "..." || SymbolBullet != "*" {
		t.Errorf("expected ASCII symbols, got %q %q", SymbolEllipsis, SymbolBullet)
	}
}

func TestUnicodeSupported_Locale(t *testing.T) {
	t.Setenv("CHATSTREAM_ASCII_SYMBOLS", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_CTYPE", "")

	t.Setenv("LANG", "C")
	if UnicodeSupported() {
		t.Error("LANG=C should select ASCII")
	}
	t.Setenv("LANG", "en_US.UTF-8")
	if !UnicodeSupported() {
		t.Error("UTF-8 locale should select Unicode")
	}
	t.Setenv("LANG", "")
	if !UnicodeSupported() {
		t.Error("unset locale should default to Unicode")
	}
}

func TestPhaseBadge(t *testing.T) {
	cases := map[domain.Phase]string{
		domain.PhaseIdle:      "ready",
		domain.PhaseSending:   "sending",
		domain.PhaseStreaming: "streaming",
		domain.PhaseErroring:  "error",
	}
	for phase, want := range cases {
		if got := PhaseBadge(phase); !strings.Contains(got, want) {
			t.Errorf("PhaseBadge(%v) = %q, want it to contain %q", phase, got, want)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 10, 20) != 10 || Clamp(25, 10, 20) != 20 || Clamp(15, 10, 20) != 15 {
		t.Error("Clamp out of range")
	}
}
