// Package props reads the managed server's key=value property file
// (server.properties) and exposes the RCON credentials derived from it.
package props

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Well-known keys in server.properties.
const (
	KeyEnableRcon   = "enable-rcon"
	KeyRconPort     = "rcon.port"
	KeyRconPassword = "rcon.password"
	KeyServerPort   = "server-port"

	DefaultRconPort = 25575
)

// Properties holds parsed values. Each value is a bool, an int or a string.
// Keys are case-sensitive.
type Properties map[string]any

// Load parses the property file at path.
func Load(path string) (Properties, error) {
	clean := filepath.Clean(path)
	f, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("open properties %s: %w", clean, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse reads key=value lines of any length. Whole-line and trailing '#'
// comments are stripped; malformed lines are skipped with a warning.
func Parse(r io.Reader) (Properties, error) {
	p := make(Properties)
	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		raw, err := br.ReadString('\n')
		if raw != "" {
			p.parseLine(lineNo, strings.TrimRight(raw, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return p, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p Properties) parseLine(lineNo int, raw string) {
	if strings.HasPrefix(raw, "#") {
		return
	}
	line := raw
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	if strings.TrimSpace(line) == "" {
		return
	}
	k, v, ok := strings.Cut(line, "=")
	if !ok {
		slog.Warn("Skipping malformed property line", "line", lineNo, "length", len(raw))
		return
	}
	p[strings.TrimSpace(k)] = coerce(strings.TrimSpace(v))
}

// coerce tries bool (TRUE/FALSE, any case), then int, then leaves the string.
func coerce(v string) any {
	switch strings.ToUpper(v) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return v
}

func (p Properties) String(key string) string {
	v, ok := p[key]
	if !ok {
		return ""
	}
	return cast.ToString(v)
}

func (p Properties) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p Properties) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// RconCredentials is the RCON view of a property snapshot.
type RconCredentials struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
}

// Address returns host:port for dialing.
func (c RconCredentials) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Credentials derives RCON credentials; host comes from the daemon config
// since server.properties does not name the interface to dial.
func (p Properties) Credentials(host string) RconCredentials {
	enabled, _ := p.Bool(KeyEnableRcon)
	port, ok := p.Int(KeyRconPort)
	if !ok || port <= 0 {
		port = DefaultRconPort
	}
	if host == "" {
		host = "localhost"
	}
	return RconCredentials{
		Enabled:  enabled,
		Host:     host,
		Port:     port,
		Password: p.String(KeyRconPassword),
	}
}
