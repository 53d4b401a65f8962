package dumpsys_test

import (
	"context"
	"io"
	"slices"
	"sync"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/dumpsys/internal/registry"
)

// fakeRegistry is a registry with a fixed list of names. Names without a
// service are registered, but not running.
type fakeRegistry struct {
	names    []string
	listErr  error
	services map[string]*fakeService
}

func newFakeRegistry(names ...string) *fakeRegistry {
	return &fakeRegistry{
		names:    names,
		services: make(map[string]*fakeService),
	}
}

func (r *fakeRegistry) List(context.Context) ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return slices.Clone(r.names), nil
}

func (r *fakeRegistry) Check(_ context.Context, name string) (registry.Service, bool) {
	svc, ok := r.services[name]
	if !ok {
		return nil, false
	}
	return svc, true
}

func (r *fakeRegistry) expectDump(name, output string) *fakeService {
	svc := &fakeService{name: name, output: output}
	r.services[name] = svc
	return svc
}

func (r *fakeRegistry) expectDumpAndHang(name string, delay time.Duration, output string) *fakeService {
	svc := r.expectDump(name, output)
	svc.delay = delay
	return svc
}

// awaitHung lets dump calls abandoned on timeout run to completion. Must be
// called from within a synctest bubble.
func (r *fakeRegistry) awaitHung() {
	var longest time.Duration
	for _, svc := range r.services {
		longest = max(longest, svc.delay)
	}
	time.Sleep(longest)
	synctest.Wait()
}

type fakeService struct {
	name   string
	output string
	delay  time.Duration
	err    error

	mx    sync.Mutex
	args  [][]string
	calls int
}

func (f *fakeService) Name() string {
	return f.name
}

func (f *fakeService) Dump(_ context.Context, w io.Writer, args []string) error {
	f.mx.Lock()
	f.args = append(f.args, args)
	f.calls++
	f.mx.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if _, err := io.WriteString(w, f.output); err != nil {
		return err
	}
	return f.err
}

func (f *fakeService) dumpCalls() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.calls
}

func (f *fakeService) lastArgs() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	if len(f.args) == 0 {
		return nil
	}
	return f.args[len(f.args)-1]
}
