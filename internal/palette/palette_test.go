package palette

import "testing"

func TestAtCycles(t *testing.T) {
	p := Default()
	tests := []struct {
		idx  int
		want RGB
	}{
		{0, Red},
		{1, ForestGreen},
		{3, Gold},
		{4, Red},
		{9, ForestGreen},
		{-1, Gold},
	}

	for _, tt := range tests {
		if got := p.At(tt.idx); got != tt.want {
			t.Errorf("At(%d) = %v, want %v", tt.idx, got, tt.want)
		}
	}
}

func TestAtEmpty(t *testing.T) {
	var p Palette
	if got := p.At(3); got != (RGB{1, 1, 1}) {
		t.Errorf("expected white for empty palette, got %v", got)
	}
}

func TestParseHex(t *testing.T) {
	p, err := ParseHex([]string{"#ff0000", "#00ffff"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(p) != 2 {
		t.Fatalf("expected 2 colours, got %d", len(p))
	}
	if p[0] != Red || p[1] != Cyan {
		t.Errorf("unexpected colours: %v", p)
	}

	if _, err := ParseHex([]string{"not-a-colour"}); err == nil {
		t.Error("expected error for bad hex")
	}

	def, err := ParseHex(nil)
	if err != nil || len(def) != 4 {
		t.Errorf("expected default palette, got %v (%v)", def, err)
	}
}

func TestHexRoundTrip(t *testing.T) {
	if got := Red.Hex(); got != "#ff0000" {
		t.Errorf("expected #ff0000, got %s", got)
	}
	if got := Default().Hex(); len(got) != 4 || got[2] != "#00ffff" {
		t.Errorf("unexpected hex list %v", got)
	}
}

func TestColor(t *testing.T) {
	r, g, b, a := Gold.Color().RGBA()
	if r != 0xffff || g>>8 != 215 || b != 0 || a != 0xffff {
		t.Errorf("unexpected gold RGBA %x %x %x %x", r, g, b, a)
	}
}
