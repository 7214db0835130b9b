// Package settings reads the environment file at the filesystem root.
// Only top-level string, integer, float and boolean keys are environment
// values; tables and arrays are skipped.
package settings

import (
	"errors"
	"io/fs"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"periphio/errcode"
)

// DefaultPath is where boot looks for the environment file.
const DefaultPath = "/settings.toml"

type Settings struct {
	vals map[string]any
}

// Parse decodes a TOML document.
func Parse(data []byte) (*Settings, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "settings.Parse", err)
	}
	s := &Settings{vals: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch v.(type) {
		case string, int64, float64, bool:
			s.vals[k] = v
		}
	}
	return s, nil
}

// Load reads path from fsys. A missing file yields empty settings.
func Load(fsys afero.Fs, path string) (*Settings, error) {
	b, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Settings{vals: map[string]any{}}, nil
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.Error, "settings.Load", err)
	}
	return Parse(b)
}

func (s *Settings) Lookup(key string) (any, bool) {
	v, ok := s.vals[key]
	return v, ok
}

// Getenv returns key as a string. Numbers and booleans are formatted the
// way they were written; a missing key returns def.
func (s *Settings) Getenv(key, def string) string {
	switch v := s.vals[key].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return def
}

// Int returns key as an integer. Strings holding a decimal integer are
// accepted; anything else returns def.
func (s *Settings) Int(key string, def int) int {
	switch v := s.vals[key].(type) {
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (s *Settings) Bool(key string, def bool) bool {
	switch v := s.vals[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Keys returns the environment keys, sorted.
func (s *Settings) Keys() []string {
	out := make([]string, 0, len(s.vals))
	for k := range s.vals {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
