package spectate

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/ascii-chess/pkg/chessdto"
)

type stubSource struct {
	png    []byte
	pgn    string
	pngErr error
}

func (s *stubSource) RenderPNG(context.Context) ([]byte, error) { return s.png, s.pngErr }

func (s *stubSource) PGN() (string, error) { return s.pgn, nil }

func newTestServer(t *testing.T, src Source) (*Server, *Client) {
	t.Helper()
	srv := NewServer("inmemory", src, nil)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Close()
		_ = ln.Close()
	})
	client := NewClient("spectate.test", WithRetry(1), WithTimeout(2*time.Second), WithDial(func(string) (net.Conn, error) {
		return ln.Dial()
	}))
	return srv, client
}

func TestStateBeforeAndAfterPublish(t *testing.T) {
	srv, client := newTestServer(t, &stubSource{})
	ctx := context.Background()

	if _, err := client.State(ctx); !errors.Is(err, ErrNoGame) {
		t.Fatalf("expected ErrNoGame before publish, got %v", err)
	}

	srv.Publish(chessdto.Snapshot{
		SessionUUID: "abc",
		PlayerName:  "tester",
		EngineElo:   1500,
		Phase:       "awaiting_input",
		Turn:        "white",
		MovesSAN:    []string{"e4", "e5"},
		FEN:         "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2",
	})
	snap, err := client.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if snap.SessionUUID != "abc" || len(snap.MovesSAN) != 2 || snap.Turn != "white" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestBoardAndPGN(t *testing.T) {
	src := &stubSource{png: []byte("\x89PNG fake"), pgn: "1. e4 *\n"}
	srv, client := newTestServer(t, src)
	ctx := context.Background()

	if _, err := client.BoardPNG(ctx); !errors.Is(err, ErrNoGame) {
		t.Fatalf("board before publish: %v", err)
	}
	srv.Publish(chessdto.Snapshot{SessionUUID: "abc"})

	png, err := client.BoardPNG(ctx)
	if err != nil || string(png) != "\x89PNG fake" {
		t.Fatalf("board = %q, %v", png, err)
	}
	pgn, err := client.PGN(ctx)
	if err != nil || pgn != "1. e4 *\n" {
		t.Fatalf("pgn = %q, %v", pgn, err)
	}

	src.pngErr = errors.New("renderer down")
	if _, err := client.BoardPNG(ctx); err == nil || errors.Is(err, ErrNoGame) {
		t.Fatalf("expected render failure, got %v", err)
	}
}

func TestHandlerRouting(t *testing.T) {
	srv := NewServer("", nil, nil)
	cases := []struct {
		method string
		path   string
		status int
	}{
		{fasthttp.MethodGet, "/healthz", fasthttp.StatusOK},
		{fasthttp.MethodGet, "/missing", fasthttp.StatusNotFound},
		{fasthttp.MethodPost, "/state", fasthttp.StatusMethodNotAllowed},
		{fasthttp.MethodGet, "/pgn", fasthttp.StatusNotFound},
	}
	for _, tc := range cases {
		var ctx fasthttp.RequestCtx
		ctx.Request.Header.SetMethod(tc.method)
		ctx.Request.SetRequestURI(tc.path)
		srv.Handler(&ctx)
		if got := ctx.Response.StatusCode(); got != tc.status {
			t.Fatalf("%s %s = %d, want %d", tc.method, tc.path, got, tc.status)
		}
	}
	if _, err := srv.Start(); err == nil {
		t.Fatalf("empty address must fail")
	}
}

func TestWatchReportsChanges(t *testing.T) {
	srv, client := newTestServer(t, &stubSource{})
	srv.Publish(chessdto.Snapshot{SessionUUID: "abc", FEN: "start"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, 10*time.Millisecond, func(s chessdto.Snapshot) {
			mu.Lock()
			got = append(got, s.FEN)
			n := len(got)
			mu.Unlock()
			if n == 1 {
				srv.Publish(chessdto.Snapshot{SessionUUID: "abc", FEN: "after-e4"})
			}
			if n == 2 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not finish")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "start" || got[1] != "after-e4" {
		t.Fatalf("unexpected updates: %v", got)
	}
}
