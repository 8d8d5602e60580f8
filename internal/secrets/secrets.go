// Package secrets resolves named secrets and keeps their values out of logs.
package secrets

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Mask replaces secret values in step output.
const Mask = "***"

// Source resolves secret names to values. Values from a dotenv file take
// precedence over the process environment.
type Source struct {
	file  map[string]string
	noEnv bool
}

// Load reads the optional dotenv file. An empty path yields an environment-only source.
func Load(path string) (*Source, error) {
	s := &Source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}
	s.file = vals
	return s, nil
}

// FromMap builds a source from fixed values, bypassing the environment.
func FromMap(vals map[string]string) *Source {
	return &Source{file: vals, noEnv: true}
}

func (s *Source) lookup(name string) (string, bool) {
	if v, ok := s.file[name]; ok {
		return v, true
	}
	if s.noEnv {
		return "", false
	}
	return os.LookupEnv(name)
}

// Resolve returns the values for names and the sorted list of names that
// could not be found.
func (s *Source) Resolve(names []string) (map[string]string, []string) {
	vals := make(map[string]string, len(names))
	var missing []string
	for _, n := range names {
		if v, ok := s.lookup(n); ok {
			vals[n] = v
		} else {
			missing = append(missing, n)
		}
	}
	sort.Strings(missing)
	return vals, missing
}

// WithoutNames drops the KEY=VALUE entries of environ whose key is in names.
// Keys compare case-insensitively on Windows.
func WithoutNames(environ []string, names map[string]bool) []string {
	if len(names) == 0 {
		return environ
	}
	fold := make(map[string]bool, len(names))
	for n := range names {
		fold[envKey(n)] = true
	}
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if fold[envKey(key)] {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func envKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}
