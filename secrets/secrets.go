// Package secrets resolves template values from an optional secret file
// and the process environment.
//
// Resolution precedence is: secret-file entry, then environment variable,
// then the caller's placeholder string. The placeholder keeps rendered
// configs usable-but-non-functional instead of failing the bootstrap.
// Secret values are never logged by this package.
package secrets

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Source resolves secret values by key.
type Source struct {
	file      map[string]string
	lookupEnv func(string) (string, bool)
}

// Load reads the secret file at path in dotenv format.
// A missing file is not an error; it yields a Source backed only by the
// environment.
func Load(path string) (*Source, error) {
	src := &Source{
		file:      map[string]string{},
		lookupEnv: os.LookupEnv,
	}
	if path == "" {
		return src, nil
	}

	entries, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return src, nil
		}
		return nil, fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	src.file = entries
	return src, nil
}

// Static builds a Source from fixed values, for tests and defaults.
// The env lookup still applies beneath the given entries.
func Static(entries map[string]string) *Source {
	file := make(map[string]string, len(entries))
	for k, v := range entries {
		file[k] = v
	}
	return &Source{file: file, lookupEnv: os.LookupEnv}
}

// Resolve returns the value for key and whether it came from a real source.
// When neither the secret file nor the environment has the key, the
// fallback placeholder is returned with ok=false.
func (s *Source) Resolve(key, placeholder string) (value string, ok bool) {
	if v, found := s.file[key]; found && v != "" {
		return v, true
	}
	if v, found := s.lookupEnv(key); found && v != "" {
		return v, true
	}
	return placeholder, false
}

// Has reports whether a real (non-placeholder) value exists for key.
func (s *Source) Has(key string) bool {
	_, ok := s.Resolve(key, "")
	return ok
}
