package xid

import (
	"strings"
	"testing"
)

func TestReferralCodeShape(t *testing.T) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code := ReferralCode()
		if len(code) != 8 {
			t.Fatalf("expected 8 characters, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) != 200 {
		t.Fatalf("expected distinct codes, got %d unique of 200", len(seen))
	}
}

func TestNumberedCarriesPrefix(t *testing.T) {
	if got := Numbered("INV"); !strings.HasPrefix(got, "INV-") {
		t.Fatalf("expected INV- prefix, got %q", got)
	}
	if got := ResetCode(); len(got) != 6 {
		t.Fatalf("expected 6-digit reset code, got %q", got)
	}
}
