package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/CZERTAINLY/dumpsys/internal/model"
	"github.com/CZERTAINLY/dumpsys/internal/registry"
)

// Request describes a single dump call
type Request struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// PipeFunc creates the channel a service writes its dump into.
type PipeFunc func() (io.ReadCloser, io.WriteCloser, error)

// OSPipe is the default PipeFunc, the service gets a write end of a pipe.
func OSPipe() (io.ReadCloser, io.WriteCloser, error) {
	return os.Pipe()
}

// MemPipe is a PipeFunc backed by an in-memory io.Pipe.
func MemPipe() (io.ReadCloser, io.WriteCloser, error) {
	r, w := io.Pipe()
	return r, w, nil
}

// Invoker calls Service.Dump and bounds the time the caller waits for it.
type Invoker struct {
	pipe PipeFunc
}

type Option func(*Invoker)

func WithPipe(pipe PipeFunc) Option {
	return func(i *Invoker) {
		i.pipe = pipe
	}
}

func NewInvoker(opts ...Option) *Invoker {
	i := &Invoker{pipe: OSPipe}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Dump issues exactly one dump call and waits at most req.Timeout for it.
// The call runs in its own goroutine, writing into a pipe drained by another
// one. On timeout the read end gets closed and both goroutines are abandoned,
// text written so far is thrown away. Dump never returns OutcomeNotRunning,
// that is decided before the service is resolved.
func (i *Invoker) Dump(ctx context.Context, svc registry.Service, req Request) model.DumpResult {
	res := model.DumpResult{
		Name:    req.Name,
		Args:    slices.Clone(req.Args),
		Started: time.Now().UTC(),
	}
	if res.Args == nil {
		res.Args = []string{}
	}
	finish := func(outcome model.Outcome, err error) model.DumpResult {
		res.Stopped = time.Now().UTC()
		res.Outcome = outcome
		res.Err = err
		return res
	}

	pr, pw, err := i.pipe()
	if err != nil {
		return finish(model.OutcomeFailed, fmt.Errorf("creating pipe: %w", err))
	}

	callCtx := ctx
	var cancel context.CancelFunc = func() {}
	if req.Timeout <= 0 {
		slog.WarnContext(ctx, "dump has no timeout", "service", req.Name)
	} else {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var buf bytes.Buffer
	read := make(chan error, 1)
	go func() {
		_, err := io.Copy(&buf, pr)
		read <- err
	}()

	call := make(chan error, 1)
	go func() {
		err := svc.Dump(callCtx, pw, res.Args)
		_ = pw.Close()
		call <- err
	}()

	abandon := func() model.DumpResult {
		_ = pr.Close()
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			slog.DebugContext(ctx, "dump timed out", "service", req.Name, "timeout", req.Timeout)
			return finish(model.OutcomeTimedOut, fmt.Errorf("%w: %s after %s", model.ErrDumpTimeout, req.Name, req.Timeout))
		}
		return finish(model.OutcomeFailed, context.Cause(ctx))
	}

	var callErr error
	select {
	case callErr = <-call:
	case <-callCtx.Done():
		return abandon()
	}

	// the write end is closed, so reader ends with the last byte written
	var readErr error
	select {
	case readErr = <-read:
	case <-callCtx.Done():
		return abandon()
	}
	_ = pr.Close()

	if callErr != nil {
		slog.DebugContext(ctx, "dump failed", "service", req.Name, "error", callErr)
		return finish(model.OutcomeFailed, callErr)
	}
	if readErr != nil {
		return finish(model.OutcomeFailed, fmt.Errorf("reading dump output: %w", readErr))
	}
	res.Text = buf.Bytes()
	return finish(model.OutcomeSuccess, nil)
}
