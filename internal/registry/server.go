package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

var ErrAlreadyRegistered = errors.New("service already registered")

// requestReadTimeout bounds how long a client may take to send its request
const requestReadTimeout = 5 * time.Second

// Server exposes a Dumper under a name in a Dir registry.
type Server struct {
	name      string
	path      string
	ln        net.Listener
	dumper    Dumper
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Listen registers name in dir. A stale socket left by a dead process is
// replaced, a live one results in ErrAlreadyRegistered.
func Listen(dir, name string, dumper Dumper) (*Server, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	if dumper == nil {
		return nil, errors.New("dumper is nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory %s: %w", dir, err)
	}

	path := socketPath(dir, name)
	if conn, err := net.DialTimeout("unix", path, defaultDialTimeout); err == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return &Server{
		name:   name,
		path:   path,
		ln:     ln,
		dumper: dumper,
	}, nil
}

func (s *Server) Name() string {
	return s.name
}

// Serve accepts dump requests until ctx is done or Close is called.
// Every connection is handled in its own goroutine. On shutdown the open
// connections are closed and Serve waits for their handlers to return.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		_ = s.Close()
	})
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			cancel()
			s.wg.Wait()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Go(func() {
			s.handle(ctx, conn)
		})
	}
}

// Close stops accepting new requests and unregisters the socket
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		// unix listener unlinks the socket file on close
		s.closeErr = s.ln.Close()
	})
	return s.closeErr
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer func() {
		stop()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	br := bufio.NewReader(conn)
	line, err := br.ReadBytes('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			slog.DebugContext(ctx, "reading dump request", "service", s.name, "error", err)
		}
		return
	}

	_ = conn.SetReadDeadline(time.Time{})

	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		_ = writeStatus(conn, status{Code: statusBadRequest, Error: "bad request: " + err.Error()})
		return
	}

	started := time.Now()
	st := status{Code: statusOK}
	if err := s.dumper.Dump(ctx, frameWriter{w: conn}, req.Args); err != nil {
		st = status{Code: statusFailed, Error: err.Error()}
	}
	if err := writeStatus(conn, st); err != nil {
		slog.DebugContext(ctx, "writing dump status", "service", s.name, "error", err)
		return
	}
	slog.DebugContext(ctx, "dump served", "service", s.name, "args", req.Args, "status", st.Code, "duration", time.Since(started))
}
