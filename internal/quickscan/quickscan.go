// Package quickscan is a cheap signature heuristic that runs without a
// trained model. It complements the classifier; it does not replace it.
package quickscan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// Scoring constants.
const (
	SignatureWeight = 60
	LargeFileWeight = 20
	LargeFileBytes  = 50000
	AlertThreshold  = 50
)

// Signatures are matched case-sensitively against the whole raw buffer, NUL
// bytes included.
var Signatures = []string{"malware", "virus", "exec", "shell"}

// Report is the outcome of Scan.
type Report struct {
	Name        string   `json:"name"`
	Size        int64    `json:"size"`
	SHA256      string   `json:"sha256"`
	Matched     []string `json:"matched,omitempty"`
	ThreatScore int      `json:"threat_score"`
	Alert       bool     `json:"alert"`
}

// Scan scores content: SignatureWeight when any signature occurs (once, no
// matter how many match), LargeFileWeight above LargeFileBytes.
func Scan(name string, content []byte) Report {
	sum := sha256.Sum256(content)
	r := Report{
		Name:   name,
		Size:   int64(len(content)),
		SHA256: hex.EncodeToString(sum[:]),
	}
	for _, sig := range Signatures {
		if bytes.Contains(content, []byte(sig)) {
			r.Matched = append(r.Matched, sig)
		}
	}
	if len(r.Matched) > 0 {
		r.ThreatScore += SignatureWeight
	}
	if r.Size > LargeFileBytes {
		r.ThreatScore += LargeFileWeight
	}
	r.Alert = r.ThreatScore > AlertThreshold
	return r
}
