// Package env composes the environment handed to the server process.
package env

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Merge layers KEY=VALUE lists over base, later layers winning, and expands
// ${VAR} references against the composed set. Entries without '=' or with
// an empty key are dropped. The result is sorted by key.
func Merge(base []string, layers ...[]string) []string {
	m := make(map[string]string, len(base))
	apply := func(kvs []string) {
		for _, kv := range kvs {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				continue
			}
			m[k] = v
		}
	}
	apply(base)
	for _, l := range layers {
		apply(l)
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+os.Expand(v, func(name string) string {
			if val, ok := m[name]; ok {
				return val
			}
			return "$" + name
		}))
	}
	sort.Strings(out)
	return out
}

// ParseFile reads a .env file: KEY=VALUE per line, # comments, no quoting.
func ParseFile(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%s:%d: expected KEY=VALUE", path, n)
		}
		out = append(out, strings.TrimSpace(k)+"="+strings.TrimSpace(v))
	}
	return out, sc.Err()
}
