// Package logscan flags suspicious lines in plain-text logs.
package logscan

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// HighRiskThreshold is the number of suspicious lines above which a log is
// considered a potential incident.
const HighRiskThreshold = 3

// maxLineBytes bounds a single log line.
const maxLineBytes = 1 << 20

// Indicators are matched case-insensitively against each line.
var Indicators = []string{"failed login", "error", "attack", "injection", "brute", "ransomware"}

// Report is the outcome of Scan.
type Report struct {
	Lines      int      `json:"lines"`
	Suspicious int      `json:"suspicious"`
	HighRisk   bool     `json:"high_risk"`
	Alerts     []string `json:"alerts"`
}

// Scan reads r line by line. Alerts keep the original lines in order.
func Scan(r io.Reader) (*Report, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	rep := &Report{Alerts: []string{}}
	for sc.Scan() {
		line := sc.Text()
		rep.Lines++
		if Suspicious(line) {
			rep.Suspicious++
			rep.Alerts = append(rep.Alerts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("logscan: read: %w", err)
	}
	rep.HighRisk = rep.Suspicious > HighRiskThreshold
	return rep, nil
}

// Suspicious reports whether line contains any indicator.
func Suspicious(line string) bool {
	lower := strings.ToLower(line)
	for _, ind := range Indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
