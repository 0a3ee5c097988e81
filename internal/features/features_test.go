package features_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/raysh454/nexus/internal/config"
	"github.com/raysh454/nexus/internal/features"
)

func TestEntropy_Empty(t *testing.T) {
	fv := features.Extract(nil, []string{"malware"})
	if fv.FileSize != 0 || fv.Entropy != 0 || fv.SuspiciousCount != 0 {
		t.Fatalf("empty content: got %+v", fv)
	}
}

func TestEntropy_SingleRepeatedByte(t *testing.T) {
	for _, n := range []int{1, 2, 17, 4096} {
		if got := features.Entropy(bytes.Repeat([]byte{'A'}, n)); got != 0 {
			t.Errorf("len %d: entropy = %v, want 0", n, got)
		}
	}
}

func TestEntropy_UniformBytesApproachesEight(t *testing.T) {
	buf := make([]byte, 256*64)
	for i := range buf {
		buf[i] = byte(i)
	}
	got := features.Entropy(buf)
	if math.Abs(got-8.0) > 0.05 {
		t.Fatalf("entropy = %v, want ~8.0", got)
	}
}

func TestEntropy_TwoSymbols(t *testing.T) {
	// Half 0x00 half 0xFF is exactly one bit per byte.
	if got := features.Entropy([]byte{0, 0xFF, 0, 0xFF}); got != 1 {
		t.Fatalf("entropy = %v, want 1", got)
	}
}

func TestEntropy_RoundedToTwoDecimals(t *testing.T) {
	got := features.Entropy([]byte("hello world"))
	if got != 2.85 {
		t.Fatalf("entropy = %v, want 2.85", got)
	}
}

func TestCountKeywords_CaseInsensitive(t *testing.T) {
	fv := features.Extract([]byte("this is MALWARE with a Shell"), []string{"malware", "SHELL", "virus"})
	if fv.SuspiciousCount != 2 {
		t.Fatalf("suspicious_count = %d, want 2", fv.SuspiciousCount)
	}
}

func TestCountKeywords_CountsEachKeywordOnce(t *testing.T) {
	n := features.CountKeywords("exec exec exec", []string{"exec"})
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestCountKeywords_IgnoresEmptyKeyword(t *testing.T) {
	if n := features.CountKeywords("anything", []string{""}); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestTextView_DropsInvalidSequences(t *testing.T) {
	raw := []byte{'m', 'a', 0xff, 'l', 0xfe, 0xc3, 'w', 'a', 'r', 'e'}
	if got := features.TextView(raw); got != "malware" {
		t.Fatalf("TextView = %q, want %q", got, "malware")
	}
	fv := features.Extract(raw, []string{"malware"})
	if fv.SuspiciousCount != 1 {
		t.Fatalf("keyword across invalid bytes not matched: %+v", fv)
	}
}

func TestTextView_KeepsValidMultibyte(t *testing.T) {
	in := []byte("naïve � ok")
	if got := features.TextView(in); got != string(in) {
		t.Fatalf("TextView = %q", got)
	}
}

type failingSource struct{ err error }

func (f failingSource) SuspiciousKeywords() ([]string, error) { return nil, f.err }

func TestExtractor_SourceFailureIsConfigurationError(t *testing.T) {
	ex, err := features.NewExtractor(failingSource{err: errors.New("disk gone")})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	if _, err := ex.Extract([]byte("x")); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestExtractor_UsesSource(t *testing.T) {
	ex, err := features.NewExtractor(config.StaticKeywords{"virus"})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	fv, err := ex.Extract([]byte("a VIRUS sample"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fv.FileSize != 14 || fv.SuspiciousCount != 1 {
		t.Fatalf("got %+v", fv)
	}
}

func TestNewExtractor_NilSource(t *testing.T) {
	if _, err := features.NewExtractor(nil); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
