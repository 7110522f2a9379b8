package messages

import (
	"math/rand/v2"
	"testing"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestNewVietnamese(t *testing.T) {
	c := New("vi_VN.UTF-8", rand.New(rand.NewPCG(1, 2)))
	if c.Locale() != "vi" {
		t.Fatalf("Locale()=%q, want vi", c.Locale())
	}
	for i := 0; i < 20; i++ {
		if got := c.Random(Urgent); !contains(ViMessages[Urgent], got) {
			t.Fatalf("Random(urgent)=%q not in vi catalog", got)
		}
	}
	if got := c.Random("unknown"); got != viFallback {
		t.Errorf("Random(unknown)=%q, want %q", got, viFallback)
	}
}

func TestNewEnglishDefault(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")
	c := New("", nil)
	if c.Locale() != "en" {
		t.Fatalf("Locale()=%q, want en", c.Locale())
	}
	if got := c.Random(Warning); !contains(EnMessages[Warning], got) {
		t.Errorf("Random(warning)=%q not in en catalog", got)
	}
	if got := c.Random(""); got != "Gentle reminder..." {
		t.Errorf("Random(\"\")=%q, want gentle fallback", got)
	}
}

func TestDetectLocaleFromLang(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "vi_VN.UTF-8")
	if got := New("", nil).Locale(); got != "vi" {
		t.Errorf("Locale()=%q, want vi", got)
	}
}

func TestRandomDeterministicWithSeed(t *testing.T) {
	a := New("en", rand.New(rand.NewPCG(7, 7)))
	b := New("en", rand.New(rand.NewPCG(7, 7)))
	for i := 0; i < 5; i++ {
		if x, y := a.Random(Urgent), b.Random(Urgent); x != y {
			t.Fatalf("Expected same sequence, got %q and %q", x, y)
		}
	}
}
