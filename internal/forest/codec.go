package forest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrCorrupt is returned when a serialized forest fails validation.
var ErrCorrupt = errors.New("forest: corrupt model")

// Encode writes f as JSON.
func (f *Forest) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(f)
}

// Decode reads and validates a forest written by Encode.
func Decode(r io.Reader) (*Forest, error) {
	var f Forest
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks structural invariants so prediction can never index out
// of range.
func (f *Forest) Validate() error {
	if f.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, f.Version)
	}
	if f.Features <= 0 {
		return fmt.Errorf("%w: features = %d", ErrCorrupt, f.Features)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrCorrupt)
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrCorrupt, ti)
		}
		for ni, n := range t.Nodes {
			if n.leaf() {
				if n.Value < 0 || n.Value > 1 {
					return fmt.Errorf("%w: tree %d node %d value %v", ErrCorrupt, ti, ni, n.Value)
				}
				continue
			}
			// Children are always appended after their parent.
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("%w: tree %d node %d has bad children", ErrCorrupt, ti, ni)
			}
			if n.Feature < 0 || n.Feature >= f.Features {
				return fmt.Errorf("%w: tree %d node %d feature %d", ErrCorrupt, ti, ni, n.Feature)
			}
		}
	}
	return nil
}
