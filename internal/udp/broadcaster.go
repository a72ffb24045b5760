// Package udp sends scan telemetry as JSON datagrams.
package udp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"hapticscan/internal/scan"
)

type udpConn interface {
	io.Writer
	io.Closer
}

type (
	resolveFunc func(network, address string) (*net.UDPAddr, error)
	dialFunc    func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)
)

// Broadcaster writes one datagram per scan snapshot to a fixed destination.
type Broadcaster struct {
	dest   string
	conn   udpConn
	log    *slog.Logger
	errors atomic.Uint64
}

func NewBroadcaster(dest string, logger *slog.Logger) (*Broadcaster, error) {
	b, err := newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
	if err != nil {
		return nil, err
	}
	if logger != nil {
		b.log = logger
	}
	return b, nil
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn, log: slog.Default()}, nil
}

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

// ObserveScan implements scan.Observer. Send failures are counted and logged
// at debug level; telemetry never stalls the scan loop.
func (b *Broadcaster) ObserveScan(snap scan.Snapshot) {
	payload, err := json.Marshal(snap)
	if err == nil {
		err = b.Send(payload)
	}
	if err != nil {
		n := b.errors.Add(1)
		b.log.Debug("udp telemetry send failed", "dest", b.dest, "error", err, "errors", n)
	}
}

// Errors counts snapshots that could not be sent.
func (b *Broadcaster) Errors() uint64 { return b.errors.Load() }

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
