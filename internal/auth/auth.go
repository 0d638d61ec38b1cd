// Package auth implements the static admin allow-list checked before any
// admin-only command runs.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Decision is the typed result of an admin capability check.
type Decision int

const (
	Unauthorized Decision = iota
	Authorized
)

func (d Decision) String() string {
	if d == Authorized {
		return "authorized"
	}
	return "unauthorized"
}

// AllowList holds the caller ids allowed to run admin commands.
type AllowList struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewAllowList(ids ...string) *AllowList {
	a := &AllowList{ids: make(map[string]struct{}, len(ids))}
	a.Add(ids...)
	return a
}

// Add inserts ids, ignoring blanks and surrounding whitespace.
func (a *AllowList) Add(ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			a.ids[id] = struct{}{}
		}
	}
}

// Check reports whether caller may run admin commands.
func (a *AllowList) Check(caller string) Decision {
	if a == nil {
		return Unauthorized
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.ids[strings.TrimSpace(caller)]; ok {
		return Authorized
	}
	return Unauthorized
}

func (a *AllowList) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ids)
}

// Read adds one caller id per line. Blank lines and lines starting with #
// are skipped.
func (a *AllowList) Read(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a.Add(line)
	}
	return sc.Err()
}

// LoadFile merges an admin file into the list. A missing file is not an
// error; the inline list alone applies.
func (a *AllowList) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Admin file not found, using inline admins only", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open admin file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := a.Read(f); err != nil {
		return fmt.Errorf("read admin file %s: %w", path, err)
	}
	return nil
}
