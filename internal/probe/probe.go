// Package probe implements the liveness query against the game server's
// status endpoint using the Minecraft Server List Ping exchange.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultAddress is where a local server answers status queries.
	DefaultAddress = "127.0.0.1:25565"
	// DefaultTimeout bounds dial plus the whole exchange.
	DefaultTimeout = 3 * time.Second

	handshakeProtocol = 47
	stateStatus       = 1
	maxVarIntBytes    = 5
	maxPacketBytes    = 2 << 20
)

// Result is the outcome of one probe. A zero Result means unreachable.
type Result struct {
	Reachable bool
	Online    int
	Max       int
	Version   string
	Latency   time.Duration
}

// Unreachable is returned for any failed probe.
var Unreachable = Result{}

// Prober queries a status endpoint. Implementations never return errors;
// every failure is reported as Unreachable.
type Prober interface {
	Probe(ctx context.Context, address string) Result
}

// SLP probes with the Server List Ping protocol.
type SLP struct {
	Timeout time.Duration
}

func NewSLP(timeout time.Duration) *SLP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SLP{Timeout: timeout}
}

// Probe performs a single status query against address.
func (p *SLP) Probe(ctx context.Context, address string) Result {
	res, err := p.query(ctx, address)
	if err != nil {
		slog.Debug("Status probe failed", "address", address, "error", err)
		return Unreachable
	}
	return res
}

type statusResponse struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players *struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
}

func (p *SLP) query(ctx context.Context, address string) (Result, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return Unreachable, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Unreachable, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	begin := time.Now()
	d := net.Dialer{Deadline: deadline}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unreachable, err
	}
	defer func() { _ = conn.Close() }()
	if err := conn.SetDeadline(deadline); err != nil {
		return Unreachable, err
	}

	var hs bytes.Buffer
	hs.Write(appendVarInt(nil, handshakeProtocol))
	hs.Write(appendString(nil, host))
	hs.Write([]byte{byte(port >> 8), byte(port)})
	hs.Write(appendVarInt(nil, stateStatus))
	if err := writePacket(conn, 0x00, hs.Bytes()); err != nil {
		return Unreachable, fmt.Errorf("handshake: %w", err)
	}
	if err := writePacket(conn, 0x00, nil); err != nil {
		return Unreachable, fmt.Errorf("status request: %w", err)
	}

	r := bufio.NewReader(conn)
	id, body, err := readPacket(r)
	if err != nil {
		return Unreachable, fmt.Errorf("status response: %w", err)
	}
	if id != 0x00 {
		return Unreachable, fmt.Errorf("unexpected packet id %#x", id)
	}
	payload, err := readString(bytes.NewReader(body))
	if err != nil {
		return Unreachable, fmt.Errorf("status payload: %w", err)
	}
	var sr statusResponse
	if err := json.Unmarshal(payload, &sr); err != nil {
		return Unreachable, fmt.Errorf("decode status: %w", err)
	}
	if sr.Players == nil {
		return Unreachable, errors.New("status response has no players section")
	}
	return Result{
		Reachable: true,
		Online:    sr.Players.Online,
		Max:       sr.Players.Max,
		Version:   sr.Version.Name,
		Latency:   time.Since(begin),
	}, nil
}

func writePacket(w io.Writer, id int32, data []byte) error {
	inner := appendVarInt(nil, id)
	inner = append(inner, data...)
	pkt := appendVarInt(nil, int32(len(inner)))
	pkt = append(pkt, inner...)
	_, err := w.Write(pkt)
	return err
}

func readPacket(r io.ByteReader) (int32, []byte, error) {
	n, err := readVarInt(r)
	if err != nil {
		return 0, nil, err
	}
	if n <= 0 || n > maxPacketBytes {
		return 0, nil, fmt.Errorf("invalid packet length %d", n)
	}
	buf := make([]byte, n)
	for i := range buf {
		if buf[i], err = r.ReadByte(); err != nil {
			return 0, nil, err
		}
	}
	br := bytes.NewReader(buf)
	id, err := readVarInt(br)
	if err != nil {
		return 0, nil, err
	}
	rest := buf[len(buf)-br.Len():]
	return id, rest, nil
}

func appendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for {
		if u&^0x7F == 0 {
			return append(b, byte(u))
		}
		b = append(b, byte(u&0x7F|0x80))
		u >>= 7
	}
}

func readVarInt(r io.ByteReader) (int32, error) {
	var result uint32
	for i := 0; i < maxVarIntBytes; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(c&0x7F) << (7 * i)
		if c&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, errors.New("varint too long")
}

func appendString(b []byte, s string) []byte {
	b = appendVarInt(b, int32(len(s)))
	return append(b, s...)
}

func readString(r *bytes.Reader) ([]byte, error) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > r.Len() {
		return nil, fmt.Errorf("invalid string length %d", n)
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(r, s); err != nil {
		return nil, err
	}
	return s, nil
}
