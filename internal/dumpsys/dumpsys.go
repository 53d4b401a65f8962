package dumpsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CZERTAINLY/dumpsys/internal/dump"
	"github.com/CZERTAINLY/dumpsys/internal/model"
	"github.com/CZERTAINLY/dumpsys/internal/parallel"
	"github.com/CZERTAINLY/dumpsys/internal/registry"
)

const (
	headerServices = "Currently running services:"
	headerHardware = "Currently running hardware services:"
	skippedSuffix  = " (skipped)"

	defaultProbeLimit = 8
)

var separator = strings.Repeat("-", 79)

type Mode int

const (
	// ModeDumpAll dumps every enumerated service except Options.Skip
	ModeDumpAll Mode = iota
	// ModeList prints the running services only
	ModeList
	// ModeListHardware prints services of the hardware namespace
	ModeListHardware
	// ModeSingle dumps Options.Target with Options.Args
	ModeSingle
)

type Options struct {
	Mode    Mode
	Target  string
	Args    []string
	Skip    []string
	Timeout time.Duration
}

// Invoker is implemented by *dump.Invoker
type Invoker interface {
	Dump(ctx context.Context, svc registry.Service, req dump.Request) model.DumpResult
}

// Observer gets every per service result, *metrics.Recorder implements it.
type Observer interface {
	Observe(res model.DumpResult)
	Listed(n int)
}

type Dumpsys struct {
	services   registry.Registry
	hardware   registry.Registry
	invoker    Invoker
	observer   Observer
	stdout     io.Writer
	stderr     io.Writer
	probeLimit int
}

func New(services, hardware registry.Registry, invoker Invoker) *Dumpsys {
	return &Dumpsys{
		services:   services,
		hardware:   hardware,
		invoker:    invoker,
		observer:   nopObserver{},
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		probeLimit: defaultProbeLimit,
	}
}

// WithOutput redirects the report, stdout gets the report itself, stderr
// the services which can't be found or failed.
func (d *Dumpsys) WithOutput(stdout, stderr io.Writer) *Dumpsys {
	d.stdout = stdout
	d.stderr = stderr
	return d
}

func (d *Dumpsys) WithObserver(observer Observer) *Dumpsys {
	if observer == nil {
		observer = nopObserver{}
	}
	d.observer = observer
	return d
}

// WithProbeLimit limits the number of concurrent liveness checks done for
// the running services header.
func (d *Dumpsys) WithProbeLimit(limit int) *Dumpsys {
	d.probeLimit = limit
	return d
}

// Run executes a single dumpsys invocation. Returned error wraps
// model.ErrRegistryUnavailable, or reports invalid options.
func (d *Dumpsys) Run(ctx context.Context, opts Options) error {
	if opts.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", opts.Timeout)
	}

	switch opts.Mode {
	case ModeSingle:
		if opts.Target == "" {
			return errors.New("no service to dump")
		}
		d.dumpService(ctx, opts.Target, opts.Args, opts.Timeout, false)
		return nil
	case ModeListHardware:
		return d.listHardware(ctx)
	case ModeList:
		names, err := d.list(ctx)
		if err != nil {
			return err
		}
		running, err := d.running(ctx, names)
		if err != nil {
			return err
		}
		d.writeHeader(headerServices, names, running, nil)
		return nil
	case ModeDumpAll:
		return d.dumpAll(ctx, opts)
	default:
		return fmt.Errorf("unknown mode %d", opts.Mode)
	}
}

func (d *Dumpsys) dumpAll(ctx context.Context, opts Options) error {
	names, err := d.list(ctx)
	if err != nil {
		return err
	}
	running, err := d.running(ctx, names)
	if err != nil {
		return err
	}

	skip := make(map[string]struct{}, len(opts.Skip))
	for _, name := range opts.Skip {
		skip[name] = struct{}{}
	}
	d.writeHeader(headerServices, names, running, skip)

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			slog.DebugContext(ctx, "duplicate service name: ignoring", "service", name)
			continue
		}
		seen[name] = struct{}{}
		if _, ok := skip[name]; ok {
			slog.DebugContext(ctx, "skipping service", "service", name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		d.dumpService(ctx, name, nil, opts.Timeout, true)
	}
	return nil
}

func (d *Dumpsys) list(ctx context.Context) ([]string, error) {
	names, err := d.services.List(ctx)
	if err != nil {
		if !errors.Is(err, model.ErrRegistryUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrRegistryUnavailable, err)
		}
		return nil, err
	}
	d.observer.Listed(len(names))
	slog.DebugContext(ctx, "services listed", "count", len(names))
	return names, nil
}

// running checks every name and returns the liveness flags in the same order
func (d *Dumpsys) running(ctx context.Context, names []string) ([]bool, error) {
	return parallel.Map(ctx, d.probeLimit, names, func(ctx context.Context, name string) (bool, error) {
		_, ok := d.services.Check(ctx, name)
		return ok, nil
	})
}

func (d *Dumpsys) writeHeader(title string, names []string, running []bool, skip map[string]struct{}) {
	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	seen := make(map[string]struct{}, len(names))
	for idx, name := range names {
		if !running[idx] {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		b.WriteString("  ")
		b.WriteString(name)
		if _, ok := skip[name]; ok {
			b.WriteString(skippedSuffix)
		}
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(d.stdout, b.String())
}

func (d *Dumpsys) listHardware(ctx context.Context) error {
	names, err := d.hardware.List(ctx)
	if err != nil {
		if !errors.Is(err, model.ErrRegistryUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrRegistryUnavailable, err)
		}
		return err
	}
	running := make([]bool, len(names))
	for idx := range running {
		running[idx] = true
	}
	d.writeHeader(headerHardware, names, running, nil)
	return nil
}

// dumpService re-checks name and dumps it. Framed output is used when
// more services are dumped in a row.
func (d *Dumpsys) dumpService(ctx context.Context, name string, args []string, timeout time.Duration, framed bool) {
	svc, ok := d.services.Check(ctx, name)
	if !ok {
		fmt.Fprintf(d.stderr, "Can't find service: %s\n", name)
		d.observer.Observe(model.DumpResult{Name: name, Args: args, Outcome: model.OutcomeNotRunning, Err: model.ErrServiceNotFound})
		return
	}

	if framed {
		fmt.Fprintf(d.stdout, "%s\nDUMP OF SERVICE %s:\n", separator, name)
	}

	res := d.invoker.Dump(ctx, svc, dump.Request{
		Name:    name,
		Args:    args,
		Timeout: timeout,
	})
	d.observer.Observe(res)

	switch res.Outcome {
	case model.OutcomeSuccess:
		_, _ = d.stdout.Write(res.Text)
		if framed && len(res.Text) > 0 && res.Text[len(res.Text)-1] != '\n' {
			_, _ = io.WriteString(d.stdout, "\n")
		}
	case model.OutcomeTimedOut:
		fmt.Fprintf(d.stdout, "\n*** SERVICE '%s' DUMP TIMEOUT (%ss) EXPIRED ***\n\n", name, seconds(timeout))
	default:
		fmt.Fprintf(d.stderr, "Error dumping service info: (%v) %s\n", res.Err, name)
	}

	if framed {
		fmt.Fprintf(d.stdout, "--------- %.3fs was the duration of dumpsys %s\n", res.Duration().Seconds(), name)
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

type nopObserver struct{}

func (nopObserver) Observe(model.DumpResult) {}
func (nopObserver) Listed(int)               {}
