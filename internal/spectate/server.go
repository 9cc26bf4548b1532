package spectate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/ascii-chess/pkg/chessdto"
)

// Source renders the live game on demand.
type Source interface {
	RenderPNG(ctx context.Context) ([]byte, error)
	PGN() (string, error)
}

// Server is a read-only HTTP view of the running game:
//
//	GET /state      latest snapshot as JSON
//	GET /board.png  current position
//	GET /pgn        game so far
//	GET /healthz
type Server struct {
	addr   string
	source Source
	logger *zap.Logger
	srv    *fasthttp.Server

	mu      sync.RWMutex
	latest  chessdto.Snapshot
	hasGame bool
	ln      net.Listener
}

func NewServer(addr string, source Source, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{addr: strings.TrimSpace(addr), source: source, logger: logger}
	s.srv = &fasthttp.Server{
		Handler:      s.Handler,
		Name:         "ascii-chess",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Publish stores the snapshot served by /state.
func (s *Server) Publish(snapshot chessdto.Snapshot) {
	s.mu.Lock()
	s.latest = snapshot
	s.hasGame = true
	s.mu.Unlock()
}

func (s *Server) Snapshot() (chessdto.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasGame
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() (string, error) {
	if s.addr == "" {
		return "", errors.New("spectate: empty listen address")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("spectate listen: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go func() {
		if err := s.Serve(ln); err != nil {
			s.logger.Warn("spectate_serve_stopped", zap.Error(err))
		}
	}()
	return ln.Addr().String(), nil
}

// Serve blocks until the listener is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("spectate_listening", zap.String("addr", ln.Addr().String()))
	return s.srv.Serve(ln)
}

func (s *Server) Close() error {
	s.mu.RLock()
	started := s.ln != nil
	s.mu.RUnlock()
	if !started {
		return nil
	}
	return s.srv.Shutdown()
}

func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	case "/state":
		s.serveState(ctx)
	case "/board.png":
		s.serveBoard(ctx)
	case "/pgn":
		s.servePGN(ctx)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) serveState(ctx *fasthttp.RequestCtx) {
	snap, ok := s.Snapshot()
	if !ok {
		ctx.Error("no game", fasthttp.StatusNotFound)
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("spectate_encode_failed", zap.Error(err))
		ctx.Error("encode failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}

func (s *Server) serveBoard(ctx *fasthttp.RequestCtx) {
	if _, ok := s.Snapshot(); !ok || s.source == nil {
		ctx.Error("no game", fasthttp.StatusNotFound)
		return
	}
	data, err := s.source.RenderPNG(ctx)
	if err != nil {
		s.logger.Warn("spectate_render_failed", zap.Error(err))
		ctx.Error("render failed", fasthttp.StatusServiceUnavailable)
		return
	}
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetContentType("image/png")
	ctx.SetBody(data)
}

func (s *Server) servePGN(ctx *fasthttp.RequestCtx) {
	if _, ok := s.Snapshot(); !ok || s.source == nil {
		ctx.Error("no game", fasthttp.StatusNotFound)
		return
	}
	pgn, err := s.source.PGN()
	if err != nil {
		ctx.Error("no game", fasthttp.StatusNotFound)
		return
	}
	ctx.SetContentType("application/x-chess-pgn; charset=utf-8")
	ctx.SetBodyString(pgn)
}
