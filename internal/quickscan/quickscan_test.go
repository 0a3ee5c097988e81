package quickscan_test

import (
	"bytes"
	"testing"

	"github.com/raysh454/nexus/internal/quickscan"
)

func TestScan(t *testing.T) {
	big := bytes.Repeat([]byte{'a'}, quickscan.LargeFileBytes+1)
	exactly := bytes.Repeat([]byte{'a'}, quickscan.LargeFileBytes)

	tests := []struct {
		name    string
		content []byte
		score   int
		alert   bool
	}{
		{"clean", []byte("hello"), 0, false},
		{"signature", []byte("run shell now"), 60, true},
		{"many signatures count once", []byte("malware virus exec shell"), 60, true},
		{"case sensitive", []byte("MALWARE"), 0, false},
		{"signature after NUL byte", []byte("MZ\x00\x00payload exec"), 60, true},
		{"large only", big, 20, false},
		{"boundary size not large", exactly, 0, false},
		{"large with signature", append(big, []byte("virus")...), 80, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := quickscan.Scan("f", tc.content)
			if r.ThreatScore != tc.score || r.Alert != tc.alert {
				t.Fatalf("got score=%d alert=%v, want %d %v", r.ThreatScore, r.Alert, tc.score, tc.alert)
			}
			if r.Size != int64(len(tc.content)) {
				t.Fatalf("size = %d", r.Size)
			}
		})
	}
}

func TestScan_Hash(t *testing.T) {
	r := quickscan.Scan("empty", nil)
	const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if r.SHA256 != emptySHA {
		t.Fatalf("sha256 = %s", r.SHA256)
	}
}
