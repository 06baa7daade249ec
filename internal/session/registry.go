// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package session implements the session registry: open connections,
// each connection's partial-line receive buffer, and the address→
// connection index used to route trade notifications to the right
// socket.
package session

import (
	"bytes"
	"net"
	"sync"

	"github.com/22388o/atom-engine/internal/dex"
)

// Conn is a single open connection's registry record: its network
// connection and the bytes received since the last complete line was
// framed out of it.
type Conn struct {
	ID   int64
	conn net.Conn
	buf  bytes.Buffer
}

// Write sends raw bytes to the peer. A write to a peer that has gone away
// fails silently as far as the rest of the engine is concerned - there is
// no retry and no reply-to-the-sender-about-the-failure.
func (c *Conn) Write(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// FeedLines appends data to c's receive buffer and extracts every
// complete line newly available, in order. A line is the bytes between
// two LF (0x0A) delimiters with the LF stripped; a trailing remainder
// after the last LF stays buffered for the next call. Empty lines are
// dropped so callers never see them.
func (c *Conn) FeedLines(data []byte) [][]byte {
	c.buf.Write(data)
	all := c.buf.Bytes()
	last := bytes.LastIndexByte(all, '\n')
	if last < 0 {
		return nil
	}
	complete := append([]byte(nil), all[:last]...)
	rest := append([]byte(nil), all[last+1:]...)
	c.buf.Reset()
	c.buf.Write(rest)

	var lines [][]byte
	for _, line := range bytes.Split(complete, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	return lines
}

// Registry tracks every open connection and the most recent address
// claims against them. All methods are safe for concurrent use, though
// in practice the dispatcher serializes access under its own command
// mutex.
type Registry struct {
	mu      sync.Mutex
	nextID  int64
	conns   map[int64]*Conn
	addrs   map[string]int64
	log     dex.Logger
}

// New returns an empty Registry.
func New(log dex.Logger) *Registry {
	return &Registry{
		conns: make(map[int64]*Conn),
		addrs: make(map[string]int64),
		log:   log,
	}
}

// Open assigns a new connection id to nc and registers it, returning the
// Conn record the dispatcher should read from and write through.
func (r *Registry) Open(nc net.Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := &Conn{ID: r.nextID, conn: nc}
	r.conns[c.ID] = c
	r.log.Infof("new connection id = %d, active connections = %d", c.ID, len(r.conns))
	return c
}

// Close removes c's buffer, every addrs entry claimed by c, and c's own
// connection record, as one atomic step: no other method call can
// observe an addrs entry pointing at a connection id that Close has
// started but not finished removing, since every Registry method takes
// the same mutex.
func (r *Registry) Close(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, id := range r.addrs {
		if id == c.ID {
			delete(r.addrs, addr)
		}
	}
	delete(r.conns, c.ID)
	_ = c.conn.Close()
	r.log.Infof("client disconnected, active connections = %d", len(r.conns))
}

// ClaimAddress records that c is the most recent connection to claim
// addr. Last writer wins; there is no ownership check, so a peer that
// names an address it does not control simply hijacks routing for it.
func (r *Registry) ClaimAddress(addr string, c *Conn) {
	if addr == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[addr] = c.ID
}

// ReplyTo sends b to c alone.
func (r *Registry) ReplyTo(c *Conn, b []byte) {
	if err := c.Write(b); err != nil {
		r.log.Debugf("write to connection %d failed: %v", c.ID, err)
	}
}

// DeliverToAddress looks addr up in the address index and, if it maps to
// a connection that is still open, sends b to it. A miss - unmapped
// address, or mapped to a connection that has since closed - is silently
// dropped.
func (r *Registry) DeliverToAddress(addr string, b []byte) {
	r.mu.Lock()
	id, ok := r.addrs[addr]
	if !ok {
		r.mu.Unlock()
		return
	}
	c, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.ReplyTo(c, b)
}

// ConnByAddress returns the connection currently claiming addr, if any.
func (r *Registry) ConnByAddress(addr string) (c *Conn, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.addrs[addr]
	if !ok {
		return nil, false
	}
	c, ok = r.conns[id]
	return c, ok
}

// BroadcastOthers sends b to every open connection except those whose id
// appears in exclude.
func (r *Registry) BroadcastOthers(b []byte, exclude ...int64) {
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	r.mu.Lock()
	targets := make([]*Conn, 0, len(r.conns))
	for id, c := range r.conns {
		if !skip[id] {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()
	for _, c := range targets {
		r.ReplyTo(c, b)
	}
}

// CloseAll closes every open connection. Used on graceful shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[int64]*Conn)
	r.addrs = make(map[string]int64)
	r.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}
