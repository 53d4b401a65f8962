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
	"path/filepath"
	"strings"
	"time"

	"github.com/CZERTAINLY/dumpsys/internal/model"
)

const (
	sockSuffix         = ".sock"
	defaultDialTimeout = 500 * time.Millisecond
)

// Dir is a Registry backed by a directory of unix sockets.
type Dir struct {
	path        string
	dialTimeout time.Duration
}

func NewDir(path string) *Dir {
	return &Dir{
		path:        path,
		dialTimeout: defaultDialTimeout,
	}
}

// WithDialTimeout changes how long Check and Dump wait for a connection
func (d *Dir) WithDialTimeout(timeout time.Duration) *Dir {
	d.dialTimeout = timeout
	return d
}

func (d *Dir) Path() string {
	return d.path
}

// List returns the names of all sockets in the directory, sorted by name.
// A directory, which does not exist, is an empty namespace.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.DebugContext(ctx, "registry directory does not exist", "path", d.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", model.ErrRegistryUnavailable, d.path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type()&fs.ModeSocket == 0 {
			continue
		}
		name, ok := strings.CutSuffix(entry.Name(), sockSuffix)
		if !ok || ValidName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Check connects to the socket of name. A service, which does not accept
// connections, is not running.
func (d *Dir) Check(ctx context.Context, name string) (Service, bool) {
	if err := ValidName(name); err != nil {
		slog.DebugContext(ctx, "check: ignoring", "service", name, "error", err)
		return nil, false
	}
	path := socketPath(d.path, name)
	conn, err := d.dial(ctx, path)
	if err != nil {
		slog.DebugContext(ctx, "check: service not reachable", "service", name, "error", err)
		return nil, false
	}
	_ = conn.Close()
	return &socketService{name: name, path: path, dir: d}, true
}

func (d *Dir) dial(ctx context.Context, path string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.dialTimeout}
	return dialer.DialContext(ctx, "unix", path)
}

func socketPath(dir, name string) string {
	return filepath.Join(dir, name+sockSuffix)
}

type socketService struct {
	name string
	path string
	dir  *Dir
}

func (s *socketService) Name() string {
	return s.name
}

func (s *socketService) Dump(ctx context.Context, w io.Writer, args []string) error {
	conn, err := s.dir.dial(ctx, s.path)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.name, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// unblocks pending reads and writes once ctx is done
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if args == nil {
		args = []string{}
	}
	req, err := json.Marshal(request{Args: args})
	if err != nil {
		return fmt.Errorf("encoding dump request: %w", err)
	}
	req = append(req, '\n')
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("sending dump request: %w", err)
	}

	err = readFrames(bufio.NewReader(conn), w)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}
