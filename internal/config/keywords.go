// Package config resolves the suspicious-keyword list used by feature
// extraction. The document is owned by the operator; this package only reads it.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ErrConfiguration marks a keyword configuration that is missing or malformed.
var ErrConfiguration = errors.New("configuration error")

// KeywordsKey is the document field holding the keyword list.
const KeywordsKey = "suspicious_keywords"

// KeywordFile reads suspicious keywords from a JSON, YAML or TOML document on
// every call, so edits to the file are picked up without a restart.
type KeywordFile struct {
	Path string
}

// NewKeywordFile returns a KeywordFile for path.
func NewKeywordFile(path string) *KeywordFile {
	return &KeywordFile{Path: path}
}

// SuspiciousKeywords loads the keyword list. Errors wrap ErrConfiguration.
func (k *KeywordFile) SuspiciousKeywords() ([]string, error) {
	if k == nil || strings.TrimSpace(k.Path) == "" {
		return nil, fmt.Errorf("%w: keyword file path is empty", ErrConfiguration)
	}

	v := viper.New()
	v.SetConfigFile(k.Path)
	if filepath.Ext(k.Path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrConfiguration, k.Path, err)
	}
	if !v.IsSet(KeywordsKey) {
		return nil, fmt.Errorf("%w: %s has no %q field", ErrConfiguration, k.Path, KeywordsKey)
	}
	return keywordList(v.Get(KeywordsKey))
}

// keywordList accepts only a sequence of strings; viper's coercing getters
// would silently turn a scalar into a one-element list.
func keywordList(raw any) ([]string, error) {
	switch vals := raw.(type) {
	case []string:
		return append([]string(nil), vals...), nil
	case []any:
		out := make([]string, 0, len(vals))
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want string", ErrConfiguration, KeywordsKey, i, v)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want a list of strings", ErrConfiguration, KeywordsKey, raw)
	}
}

// StaticKeywords is a fixed keyword list, handy when the caller already
// resolved the configuration.
type StaticKeywords []string

func (s StaticKeywords) SuspiciousKeywords() ([]string, error) {
	return append([]string(nil), s...), nil
}
