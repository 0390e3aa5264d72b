// Package client is a thin synchronous client for pkg/server, built
// around a pooled connection per outstanding request. Grounded on the
// teacher's client.ConnPool — dial-on-demand up to MaxConnections,
// idle-connection reaping, a buffered "available" channel — with the
// API-key authentication handshake dropped (this protocol has none) and
// the protobuf envelope swapped for codec.Frame.
package client

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultPoolSize    = 20
	DefaultConnTimeout = 5 * time.Second
	DefaultIdleTimeout = 60 * time.Second
)

var (
	ErrPoolClosed    = errors.New("connection pool is closed")
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// PoolConfig configures a ConnPool.
type PoolConfig struct {
	MaxConnections int
	ConnTimeout    time.Duration
	IdleTimeout    time.Duration
	TLSConfig      *tls.Config // nil dials plaintext
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnections: DefaultPoolSize,
		ConnTimeout:    DefaultConnTimeout,
		IdleTimeout:    DefaultIdleTimeout,
	}
}

type pooledConn struct {
	conn     net.Conn
	lastUsed atomic.Int64
}

// ConnPool manages a bounded set of connections to one server address.
type ConnPool struct {
	mu          sync.Mutex
	addr        string
	cfg         PoolConfig
	available   chan *pooledConn
	activeCount int32
	closed      atomic.Bool
}

func NewConnPool(addr string, cfg PoolConfig) (*ConnPool, error) {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultPoolSize
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = DefaultConnTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}

	p := &ConnPool{
		addr:      addr,
		cfg:       cfg,
		available: make(chan *pooledConn, cfg.MaxConnections),
	}

	pc, err := p.createConn()
	if err != nil {
		return nil, err
	}
	p.release(pc)
	return p, nil
}

func (p *ConnPool) createConn() (*pooledConn, error) {
	var conn net.Conn
	var err error
	if p.cfg.TLSConfig != nil {
		dialer := &net.Dialer{Timeout: p.cfg.ConnTimeout}
		conn, err = tls.DialWithDialer(dialer, "tcp", p.addr, p.cfg.TLSConfig)
	} else {
		conn, err = net.DialTimeout("tcp", p.addr, p.cfg.ConnTimeout)
	}
	if err != nil {
		return nil, err
	}
	pc := &pooledConn{conn: conn}
	pc.lastUsed.Store(time.Now().UnixNano())
	atomic.AddInt32(&p.activeCount, 1)
	return pc, nil
}

// acquire returns a connection from the pool, dialing a new one if the
// pool has spare capacity, or waiting up to ConnTimeout otherwise.
func (p *ConnPool) acquire() (*pooledConn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	select {
	case pc := <-p.available:
		if time.Since(time.Unix(0, pc.lastUsed.Load())) < p.cfg.IdleTimeout {
			return pc, nil
		}
		_ = pc.conn.Close()
		atomic.AddInt32(&p.activeCount, -1)
	default:
	}

	if atomic.LoadInt32(&p.activeCount) < int32(p.cfg.MaxConnections) {
		return p.createConn()
	}

	select {
	case pc := <-p.available:
		return pc, nil
	case <-time.After(p.cfg.ConnTimeout):
		return nil, ErrPoolExhausted
	}
}

// release returns a healthy connection to the pool, or discards it on
// a prior error (the caller signals that by calling discard instead).
func (p *ConnPool) release(pc *pooledConn) {
	pc.lastUsed.Store(time.Now().UnixNano())
	if p.closed.Load() {
		p.discard(pc)
		return
	}
	select {
	case p.available <- pc:
	default:
		_ = pc.conn.Close()
		atomic.AddInt32(&p.activeCount, -1)
	}
}

func (p *ConnPool) discard(pc *pooledConn) {
	_ = pc.conn.Close()
	atomic.AddInt32(&p.activeCount, -1)
}

// Close closes every pooled connection. In-flight requests on
// checked-out connections are unaffected; they simply won't be
// returned to the pool once Close has run.
func (p *ConnPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for {
		select {
		case pc := <-p.available:
			_ = pc.conn.Close()
		default:
			return
		}
	}
}

// Stats reports the pool's current size and how many connections are
// idle and available for reuse.
func (p *ConnPool) Stats() (active, available int) {
	return int(atomic.LoadInt32(&p.activeCount)), len(p.available)
}
