// Package keystore loads per-device authentication keys from a flat file
// and serves them as an inform.KeyResolver.
//
// The file holds one JSON object per line, as exported from the
// controller's device collection:
//
//	{"mac": "aa:bb:cc:dd:ee:ff", "x_authkey": "ba86f2bbe107c7c57eb5f2690775c712"}
//
// Lines starting with '#' are comments. ObjectId(...) wrappers from a
// mongo shell export are accepted.
package keystore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	inform "github.com/dmke/unispi"
)

// Template is written to a missing key file.
const Template = `# This file is used to store the keys used to decrypt the inform packets. One per line.
# Example: {"mac": "aa:bb:cc:dd:ee:ff", "x_authkey": "ba86f2bbe107c7c57eb5f2690775c712"}
`

var objectID = regexp.MustCompile(`ObjectId\(([^)]+)\)`)

// Store maps lower case MAC addresses to hex keys. It is safe for
// concurrent use.
type Store struct {
	path string
	log  logrus.FieldLogger

	mu   sync.RWMutex
	keys map[string]string
}

var _ inform.KeyResolver = (*Store)(nil)

// Open loads the key file at path, creating it from Template if it does
// not exist.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{path: path, log: log.WithField("keys_file", path), keys: map[string]string{}}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(path, []byte(Template), 0o600); err != nil {
			return nil, fmt.Errorf("cannot create key file: %w", err)
		}
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the key file and replaces all keys at once.
func (s *Store) Reload() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("cannot open key file: %w", err)
	}
	defer f.Close()

	keys, err := Parse(f, s.log)
	if err != nil {
		return fmt.Errorf("cannot read key file: %w", err)
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	s.log.WithField("count", len(keys)).Info("loaded keys")
	return nil
}

// ResolveKey implements inform.KeyResolver.
func (s *Store) ResolveKey(_ context.Context, mac string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[strings.ToLower(mac)]
	return key, ok
}

// MACs returns the known device addresses, sorted.
func (s *Store) MACs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	macs := make([]string, 0, len(s.keys))
	for mac := range s.keys {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

type entry struct {
	MAC json.RawMessage `json:"mac"`
	Key json.RawMessage `json:"x_authkey"`
}

// Parse reads key file lines from r. Invalid lines are logged and
// skipped; only read errors are returned.
func Parse(r io.Reader, log logrus.FieldLogger) (map[string]string, error) {
	keys := map[string]string{}
	sc := bufio.NewScanner(r)
	for lineno := 1; sc.Scan(); lineno++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l := log.WithField("line", lineno)
		if !strings.HasPrefix(line, "{") {
			l.Warn("invalid line in key file, ignoring")
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(objectID.ReplaceAllString(line, "$1 ")), &e); err != nil {
			l.WithError(err).Warn("invalid line in key file, ignoring")
			continue
		}
		var mac, key string
		if json.Unmarshal(e.MAC, &mac) != nil || json.Unmarshal(e.Key, &key) != nil {
			l.Warn("invalid key in key file, ignoring")
			continue
		}
		keys[strings.ToLower(mac)] = key
	}
	return keys, sc.Err()
}
