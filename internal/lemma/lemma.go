// Package lemma maps words to their canonical form before indexing and querying.
package lemma

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/kljensen/snowball"
	"go.uber.org/zap"
)

// Fallback names what happens to words missing from the dictionary.
type Fallback string

// Supported fallbacks.
const (
	FallbackIdentity Fallback = "identity"
	FallbackSnowball Fallback = "snowball"
)

// ParseFallback validates a configured fallback name. Empty means identity.
func ParseFallback(name string) (Fallback, error) {
	switch Fallback(strings.ToLower(strings.TrimSpace(name))) {
	case "", FallbackIdentity:
		return FallbackIdentity, nil
	case FallbackSnowball:
		return FallbackSnowball, nil
	default:
		return "", fmt.Errorf("unknown lemma fallback %q", name)
	}
}

// Dictionary is a read-only word to lemma map. It is safe for concurrent use.
type Dictionary struct {
	entries  map[string]string
	fallback Fallback
}

// NewDictionary wraps an in-memory map. Keys are lowercased.
func NewDictionary(entries map[string]string, fallback Fallback) *Dictionary {
	normalized := make(map[string]string, len(entries))
	for k, v := range entries {
		if v == "" {
			continue
		}
		normalized[strings.ToLower(k)] = v
	}
	if fallback == "" {
		fallback = FallbackIdentity
	}
	return &Dictionary{entries: normalized, fallback: fallback}
}

// Decode reads a JSON object of word to lemma pairs.
func Decode(r io.Reader, fallback Fallback) (*Dictionary, error) {
	var entries map[string]string
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode lemma dictionary: %w", err)
	}
	return NewDictionary(entries, fallback), nil
}

// Load reads the dictionary file at path. A missing file yields an empty
// dictionary and a warning.
func Load(path string, fallback Fallback, logger *zap.Logger) (*Dictionary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("lemma dictionary not found, using fallback only",
			zap.String("path", path),
			zap.String("fallback", string(fallback)),
		)
		return NewDictionary(nil, fallback), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open lemma dictionary: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	dict, err := Decode(f, fallback)
	if err != nil {
		return nil, err
	}
	logger.Info("lemma dictionary loaded", zap.String("path", path), zap.Int("entries", dict.Len()))
	return dict, nil
}

// Lemma returns the canonical form of word.
func (d *Dictionary) Lemma(word string) string {
	if lemma, ok := d.entries[strings.ToLower(word)]; ok {
		return lemma
	}
	if d.fallback == FallbackSnowball {
		stemmed, err := snowball.Stem(word, "english", true)
		if err != nil || stemmed == "" {
			return word
		}
		return stemmed
	}
	return word
}

// Len reports the number of dictionary entries.
func (d *Dictionary) Len() int {
	return len(d.entries)
}
