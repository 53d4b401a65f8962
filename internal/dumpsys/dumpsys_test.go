package dumpsys_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/dumpsys/internal/dump"
	"github.com/CZERTAINLY/dumpsys/internal/dumpsys"
	"github.com/CZERTAINLY/dumpsys/internal/model"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sm     *fakeRegistry
	hm     *fakeRegistry
	obs    *recordingObserver
	stdout string
	stderr string
}

func newFixture() *fixture {
	return &fixture{
		sm:  newFakeRegistry(),
		hm:  newFakeRegistry(),
		obs: &recordingObserver{},
	}
}

func (f *fixture) callMain(t *testing.T, opts dumpsys.Options) {
	t.Helper()
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	var stdout, stderr bytes.Buffer
	d := dumpsys.New(f.sm, f.hm, dump.NewInvoker(dump.WithPipe(dump.MemPipe))).
		WithOutput(&stdout, &stderr).
		WithObserver(f.obs)
	err := d.Run(t.Context(), opts)
	require.NoError(t, err)
	f.stdout = stdout.String()
	f.stderr = stderr.String()
}

func (f *fixture) assertRunningServices(t *testing.T, services []string, message string) {
	t.Helper()
	expected := message + "\n"
	for _, service := range services {
		expected += "  " + service + "\n"
	}
	require.Contains(t, f.stdout, expected)
}

func (f *fixture) assertDumped(t *testing.T, service, dump string) {
	t.Helper()
	require.Contains(t, f.stdout, "DUMP OF SERVICE "+service+":\n"+dump)
}

func (f *fixture) assertNotDumped(t *testing.T, dump string) {
	t.Helper()
	require.NotContains(t, f.stdout, dump)
}

func (f *fixture) assertStopped(t *testing.T, service string) {
	t.Helper()
	require.Contains(t, f.stderr, "Can't find service: "+service+"\n")
}

func TestListHwServices(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.hm.names = []string{"Locksmith", "Valet"}

	f.callMain(t, dumpsys.Options{Mode: dumpsys.ModeListHardware})

	f.assertRunningServices(t, []string{"Locksmith", "Valet"}, "Currently running hardware services:")
	require.Equal(t, "Currently running hardware services:\n  Locksmith\n  Valet\n", f.stdout)
}

func TestListAllServices(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sm.names = []string{"Locksmith", "Valet"}
	f.sm.expectDump("Locksmith", "")
	f.sm.expectDump("Valet", "")

	f.callMain(t, dumpsys.Options{Mode: dumpsys.ModeList})

	require.Equal(t, "Currently running services:\n  Locksmith\n  Valet\n", f.stdout)
	require.Empty(t, f.stderr)
}

func TestListRunningServices(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sm.names = []string{"Locksmith", "Valet"}
	locksmith := f.sm.expectDump("Locksmith", "keys")

	f.callMain(t, dumpsys.Options{Mode: dumpsys.ModeList})

	f.assertRunningServices(t, []string{"Locksmith"}, "Currently running services:")
	f.assertNotDumped(t, "Valet")
	f.assertNotDumped(t, "keys")
	require.Zero(t, locksmith.dumpCalls())
}

func TestDumpRunningService(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sm.expectDump("Valet", "Here's your car")

	f.callMain(t, dumpsys.Options{Mode: dumpsys.ModeSingle, Target: "Valet"})

	require.Equal(t, "Here's your car", f.stdout)
	require.Empty(t, f.stderr)
}

func TestDumpRunningServiceTimeout(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		f.sm.expectDumpAndHang("Valet", 2*time.Second, "Here's your car")

		start := time.Now()
		f.callMain(t, dumpsys.Options{Mode: dumpsys.ModeSingle, Target: "Valet", Timeout: time.Second})
		require.Equal(t, time.Second, time.Since(start))

		require.Contains(t, f.stdout, "SERVICE 'Valet' DUMP TIMEOUT (1s) EXPIRED")
		f.assertNotDumped(t, "Here's your car")
		require.Equal(t, []model.Outcome{model.OutcomeTimedOut}, f.obs.outcomes())

		f.sm.awaitHung()
	})
}

func TestDumpWithArgsRunningService(t *testing.T) {
	t.Parallel()
	f := newFixture()
	svc := f.sm.expectDump("SERVICE", "I DO!")

	args := []string{"Y", "U", "NO", "HANDLE", "ARGS"}
	f.callMain(t, dumpsys.Options{Mode: dumpsys.ModeSingle, Target: "SERVICE", Args: args})

	require.Equal(t, "I DO!", f.stdout)
	require.Equal(t, args, svc.lastArgs())
	require.Equal(t, 1, svc.dumpCalls())
}

func TestDumpStoppedService(t *testing.T) {
	t.Parallel()
	f := newFixture()

	f.callMain(t, dumpsys.Options{Mode: dumpsys.ModeSingle, Target: "Valet"})

	require.Empty(t, f.stdout)
	require.Equal(t, "Can't find service: Valet\n", f.stderr)
	require.Equal(t, []model.Outcome{model.OutcomeNotRunning}, f.obs.outcomes())
}

func TestDumpMultipleServices(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		f.sm.names = []string{"running1", "stopped2", "running3"}
		f.sm.expectDump("running1", "dump1")
		f.sm.expectDump("running3", "dump3")

		f.callMain(t, dumpsys.Options{})

		f.assertRunningServices(t, []string{"running1", "running3"}, "Currently running services:")
		f.assertDumped(t, "running1", "dump1")
		f.assertStopped(t, "stopped2")
		f.assertDumped(t, "running3", "dump3")
		require.Less(t,
			strings.Index(f.stdout, "DUMP OF SERVICE running1:"),
			strings.Index(f.stdout, "DUMP OF SERVICE running3:"),
		)
		require.NotContains(t, f.stdout, "stopped2")
		require.Contains(t, f.stdout, "--------- 0.000s was the duration of dumpsys running1\n")

		expected := "Currently running services:\n" +
			"  running1\n" +
			"  running3\n" +
			strings.Repeat("-", 79) + "\n" +
			"DUMP OF SERVICE running1:\n" +
			"dump1\n" +
			"--------- 0.000s was the duration of dumpsys running1\n" +
			strings.Repeat("-", 79) + "\n" +
			"DUMP OF SERVICE running3:\n" +
			"dump3\n" +
			"--------- 0.000s was the duration of dumpsys running3\n"
		require.Equal(t, expected, f.stdout)
		require.Equal(t,
			[]model.Outcome{model.OutcomeSuccess, model.OutcomeNotRunning, model.OutcomeSuccess},
			f.obs.outcomes(),
		)
		require.Equal(t, 3, f.obs.listedCount())
	})
}

func TestDumpWithSkip(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sm.names = []string{"running1", "stopped2", "skipped3", "running4", "skipped5"}
	f.sm.expectDump("running1", "dump1")
	skipped3 := f.sm.expectDump("skipped3", "dump3")
	f.sm.expectDump("running4", "dump4")
	skipped5 := f.sm.expectDump("skipped5", "dump5")

	f.callMain(t, dumpsys.Options{Skip: []string{"skipped3", "skipped5"}})

	f.assertRunningServices(t, []string{"running1", "skipped3 (skipped)", "running4", "skipped5 (skipped)"}, "Currently running services:")
	f.assertDumped(t, "running1", "dump1")
	f.assertDumped(t, "running4", "dump4")
	f.assertStopped(t, "stopped2")
	f.assertNotDumped(t, "dump3")
	f.assertNotDumped(t, "dump5")
	f.assertNotDumped(t, "DUMP OF SERVICE skipped3")
	require.Zero(t, skipped3.dumpCalls())
	require.Zero(t, skipped5.dumpCalls())
}

func TestDumpSkipSharedOutput(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sm.names = []string{"a", "b"}
	f.sm.expectDump("a", "same text")
	b := f.sm.expectDump("b", "same text")

	f.callMain(t, dumpsys.Options{Skip: []string{"b"}})

	require.Equal(t, 1, strings.Count(f.stdout, "same text"))
	require.NotContains(t, f.stdout, "DUMP OF SERVICE b:")
	require.Zero(t, b.dumpCalls())
}

func TestDumpAllTimeoutIsolated(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		f := newFixture()
		f.sm.names = []string{"hang", "fine"}
		f.sm.expectDumpAndHang("hang", 5*time.Second, "never shown")
		f.sm.expectDump("fine", "all good")

		f.callMain(t, dumpsys.Options{Timeout: 2 * time.Second})

		require.Contains(t, f.stdout, "DUMP OF SERVICE hang:\n\n*** SERVICE 'hang' DUMP TIMEOUT (2s) EXPIRED ***\n\n")
		require.Contains(t, f.stdout, "--------- 2.000s was the duration of dumpsys hang\n")
		f.assertNotDumped(t, "never shown")
		f.assertDumped(t, "fine", "all good")
		require.Equal(t, []model.Outcome{model.OutcomeTimedOut, model.OutcomeSuccess}, f.obs.outcomes())

		f.sm.awaitHung()
	})
}

func TestDumpCallError(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sm.names = []string{"Broken", "Valet"}
	broken := f.sm.expectDump("Broken", "half a dump")
	broken.err = errors.New("boom")
	f.sm.expectDump("Valet", "Here's your car")

	f.callMain(t, dumpsys.Options{})

	require.Contains(t, f.stderr, "Error dumping service info: (boom) Broken\n")
	f.assertNotDumped(t, "half a dump")
	f.assertDumped(t, "Valet", "Here's your car")
	require.Equal(t, []model.Outcome{model.OutcomeFailed, model.OutcomeSuccess}, f.obs.outcomes())
}

func TestDumpDuplicateNames(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sm.names = []string{"twice", "twice"}
	svc := f.sm.expectDump("twice", "once")

	f.callMain(t, dumpsys.Options{})

	require.Equal(t, 1, strings.Count(f.stdout, "DUMP OF SERVICE twice:"))
	require.Equal(t, 1, strings.Count(f.stdout, "  twice\n"))
	require.Equal(t, 1, svc.dumpCalls())
}

func TestRegistryUnavailable(t *testing.T) {
	t.Parallel()
	for _, mode := range []dumpsys.Mode{dumpsys.ModeDumpAll, dumpsys.ModeList, dumpsys.ModeListHardware} {
		f := newFixture()
		f.sm.listErr = errors.New("permission denied")
		f.hm.listErr = errors.New("permission denied")

		var stdout, stderr bytes.Buffer
		d := dumpsys.New(f.sm, f.hm, dump.NewInvoker()).WithOutput(&stdout, &stderr)
		err := d.Run(t.Context(), dumpsys.Options{Mode: mode, Timeout: time.Second})
		require.Error(t, err)
		require.ErrorIs(t, err, model.ErrRegistryUnavailable)
		require.Empty(t, stdout.String())
	}
}

func TestInvalidOptions(t *testing.T) {
	t.Parallel()
	f := newFixture()
	d := dumpsys.New(f.sm, f.hm, dump.NewInvoker()).WithOutput(&bytes.Buffer{}, &bytes.Buffer{})

	err := d.Run(t.Context(), dumpsys.Options{})
	require.EqualError(t, err, "timeout must be positive, got 0s")

	err = d.Run(t.Context(), dumpsys.Options{Mode: dumpsys.ModeSingle, Timeout: time.Second})
	require.EqualError(t, err, "no service to dump")
}

type recordingObserver struct {
	mx      sync.Mutex
	results []model.DumpResult
	listed  int
}

func (o *recordingObserver) Observe(res model.DumpResult) {
	o.mx.Lock()
	defer o.mx.Unlock()
	o.results = append(o.results, res)
}

func (o *recordingObserver) Listed(n int) {
	o.mx.Lock()
	defer o.mx.Unlock()
	o.listed = n
}

func (o *recordingObserver) outcomes() []model.Outcome {
	o.mx.Lock()
	defer o.mx.Unlock()
	ret := make([]model.Outcome, 0, len(o.results))
	for _, r := range o.results {
		ret = append(ret, r.Outcome)
	}
	return ret
}

func (o *recordingObserver) listedCount() int {
	o.mx.Lock()
	defer o.mx.Unlock()
	return o.listed
}
