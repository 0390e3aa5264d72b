// Package server is the TCP front end for a store.Manager: one
// length-prefixed JSON frame per request, one per response. Grounded on
// the teacher's tcp.go accept-loop/per-connection-goroutine shape and
// its optional-TLS, per-connection rate limiter pattern, with the
// protobuf envelope and API-key authentication layer dropped — this
// module has no auth story (see DESIGN.md).
package server

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vidqr/vidqr/pkg/codec"
	"github.com/vidqr/vidqr/pkg/logging"
	"github.com/vidqr/vidqr/pkg/store"
	"github.com/vidqr/vidqr/pkg/version"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxFrameSize = codec.DefaultMaxFrameSize
	DefaultIdleTimeout  = 300 * time.Second
	DefaultRateLimit    = 1000
	DefaultRateBurst    = 100
)

// Config configures a Server.
type Config struct {
	MaxFrameSize uint32
	IdleTimeout  time.Duration
	RateLimit    int // requests/second allowed per connection; 0 disables limiting
	RateBurst    int
	TLSConfig    *tls.Config // nil disables TLS
}

// DefaultConfig returns the teacher's defaults, translated to this
// protocol: a generous frame ceiling, a five-minute idle timeout, and a
// permissive per-connection rate limit.
func DefaultConfig() Config {
	return Config{
		MaxFrameSize: DefaultMaxFrameSize,
		IdleTimeout:  DefaultIdleTimeout,
		RateLimit:    DefaultRateLimit,
		RateBurst:    DefaultRateBurst,
	}
}

// Server accepts connections and dispatches each frame to a
// store.Manager.
type Server struct {
	manager  *store.Manager
	cfg      Config
	listener net.Listener
	wg       sync.WaitGroup
	stopCh   chan struct{}
}

func New(manager *store.Manager, cfg Config) *Server {
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Server{manager: manager, cfg: cfg, stopCh: make(chan struct{})}
}

// Start binds addr and begins accepting connections in the background.
func (s *Server) Start(addr string) error {
	var ln net.Listener
	var err error
	if s.cfg.TLSConfig != nil {
		ln, err = tls.Listen("tcp", addr, s.cfg.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return err
	}
	s.listener = ln
	logging.Info("vidqr server listening on %s (tls=%v)", addr, s.cfg.TLSConfig != nil)
	go s.acceptLoop()
	return nil
}

// Addr returns the address the server is listening on. Only valid
// after a successful Start.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop closes the listener and waits for every in-flight connection
// handler to return.
func (s *Server) Stop() {
	close(s.stopCh)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				logging.Error("accept error: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	}

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		_ = conn.SetDeadline(time.Now().Add(s.cfg.IdleTimeout))

		var req codec.Request
		if err := codec.ReadFrame(conn, s.cfg.MaxFrameSize, &req); err != nil {
			if err != io.EOF {
				logging.Error("read frame error: %v", err)
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			resp := codec.Response{ID: req.ID, Ok: false, Error: "rate limit exceeded"}
			if err := codec.WriteFrame(conn, resp); err != nil {
				logging.Error("write frame error: %v", err)
				return
			}
			continue
		}

		resp := s.dispatch(req)
		if err := codec.WriteFrame(conn, resp); err != nil {
			logging.Error("write frame error: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(req codec.Request) codec.Response {
	switch req.Type {
	case codec.CmdPing:
		return codec.Response{ID: req.ID, Ok: true, Info: "PONG"}

	case codec.CmdInfo:
		return codec.Response{ID: req.ID, Ok: true, Info: fmt.Sprintf("vidqr %s, %d stores open", version.Version, s.manager.Count())}

	case codec.CmdCreateStore:
		if _, err := s.manager.Get(req.Store); err != nil {
			return errResponse(req.ID, err)
		}
		return codec.Response{ID: req.ID, Ok: true}

	case codec.CmdIngest:
		st, err := s.manager.Get(req.Store)
		if err != nil {
			return errResponse(req.ID, err)
		}
		ids, err := st.Ingest(req.Text)
		if err != nil {
			return errResponse(req.ID, err)
		}
		return codec.Response{ID: req.ID, Ok: true, ChunkID: ids}

	case codec.CmdSeal:
		st, err := s.manager.Get(req.Store)
		if err != nil {
			return errResponse(req.ID, err)
		}
		stats, err := st.Seal()
		if err != nil {
			return errResponse(req.ID, err)
		}
		return codec.Response{ID: req.ID, Ok: true, Info: fmt.Sprintf("sealed %d frames", stats.TotalFrames)}

	case codec.CmdQuery:
		st, err := s.manager.Get(req.Store)
		if err != nil {
			return errResponse(req.ID, err)
		}
		results, err := st.Query(req.Text, req.K)
		if err != nil {
			return errResponse(req.ID, err)
		}
		hits := make([]codec.SearchHit, len(results))
		for i, r := range results {
			hits[i] = codec.SearchHit{ID: r.ID, Similarity: r.Similarity, Distance: r.Distance}
		}
		return codec.Response{ID: req.ID, Ok: true, Hits: hits}

	case codec.CmdRetrieve:
		st, err := s.manager.Get(req.Store)
		if err != nil {
			return errResponse(req.ID, err)
		}
		texts, err := st.Retrieve()
		if err != nil {
			return errResponse(req.ID, err)
		}
		return codec.Response{ID: req.ID, Ok: true, Texts: texts}

	case codec.CmdListStores:
		return codec.Response{ID: req.ID, Ok: true, Stores: s.manager.List()}

	case codec.CmdDeleteStore:
		if err := s.manager.Delete(req.Store); err != nil {
			return errResponse(req.ID, err)
		}
		return codec.Response{ID: req.ID, Ok: true}

	default:
		return codec.Response{ID: req.ID, Ok: false, Error: fmt.Sprintf("unknown command %q", req.Type)}
	}
}

func errResponse(id uint64, err error) codec.Response {
	return codec.Response{ID: id, Ok: false, Error: err.Error()}
}
