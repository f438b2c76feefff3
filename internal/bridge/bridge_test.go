package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenPendantBridge/internal/cncjs"
	"github.com/KevinKickass/OpenPendantBridge/internal/dispatch"
	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
	"github.com/KevinKickass/OpenPendantBridge/internal/pendant"
	"github.com/KevinKickass/OpenPendantBridge/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDevice struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (d *fakeDevice) SendFeatureReport(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}
	d.packets = append(d.packets, append([]byte(nil), p...))
	return len(p), nil
}

func (d *fakeDevice) sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.packets...)
}

type fakeController struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (c *fakeController) WriteLine(_ context.Context, line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *fakeController) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

type recordingObserver struct {
	commands    []types.Command
	dryRuns     []bool
	diagnostics []error
	modes       []bool
}

func (o *recordingObserver) OnCommand(cmd types.Command, dryRun bool) {
	o.commands = append(o.commands, cmd)
	o.dryRuns = append(o.dryRuns, dryRun)
}
func (o *recordingObserver) OnDiagnostic(err error)  { o.diagnostics = append(o.diagnostics, err) }
func (o *recordingObserver) OnDisplayMode(work bool) { o.modes = append(o.modes, work) }

type harness struct {
	bridge     *Bridge
	device     *fakeDevice
	controller *fakeController
	observer   *recordingObserver
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	if cfg.Options.AxisLetters == "" {
		opts := dispatch.DefaultOptions()
		opts.Macros = cfg.Options.Macros
		opts.DryRunButtons = cfg.Options.DryRunButtons
		opts.DryRunJog = cfg.Options.DryRunJog
		opts.DryRunProbe = cfg.Options.DryRunProbe
		cfg.Options = opts
	}

	h := &harness{
		device:     &fakeDevice{},
		controller: &fakeController{},
		observer:   &recordingObserver{},
	}
	h.bridge = New(cfg, machine.NewStore(logger), h.device, h.controller, logger)
	h.bridge.AddObserver(h.observer)
	return h
}

// report builds a raw input report with the axis selector on X.
func report(b1, b2, knob uint8, jog int8) []byte {
	return []byte{0x04, 0x00, b1, b2, knob, 0x11, byte(jog)}
}

func idle(h *harness) {
	h.bridge.store.UpdateState(machine.MachineState{
		ActiveState:     machine.StateIdle,
		MachinePosition: machine.Position{1, 2, 3},
		WorkPosition:    machine.Position{4, 5, 6},
	})
	h.bridge.store.UpdateSettings(machine.Settings{"$110": 500, "$111": 500, "$112": 300, "$27": 5})
}

func TestReportSendsButtonCommand(t *testing.T) {
	h := newHarness(t, Config{})
	idle(h)

	require.NoError(t, h.bridge.handleReport(context.Background(), report(dispatch.ButtonReset, 0, 16, 0)))

	assert.Equal(t, []string{"$X\n"}, h.controller.written())
	require.Len(t, h.observer.commands, 1)
	assert.False(t, h.observer.dryRuns[0])
	assert.Equal(t, uint64(1), h.bridge.stats.commandsSent.Load())
}

func TestReportButtonsThenJog(t *testing.T) {
	h := newHarness(t, Config{JogStateGate: true})
	idle(h)

	require.NoError(t, h.bridge.handleReport(context.Background(), report(dispatch.ButtonStop, 0, 16, 2)))

	assert.Equal(t, []string{"!\n", "$J=G21G91X2.000F500\n"}, h.controller.written())
}

func TestReportDecodeErrorIsDiagnostic(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.bridge.handleReport(context.Background(), []byte{0x04, 0x00}))

	assert.Empty(t, h.controller.written())
	require.Len(t, h.observer.diagnostics, 1)
	assert.ErrorIs(t, h.observer.diagnostics[0], pendant.ErrTruncated)
	assert.Equal(t, uint64(1), h.bridge.stats.decodeErrors.Load())
}

func TestReportAxisOffDoesNothing(t *testing.T) {
	h := newHarness(t, Config{})
	idle(h)

	raw := report(dispatch.ButtonReset, 0, 16, 3)
	raw[5] = 0x06

	require.NoError(t, h.bridge.handleReport(context.Background(), raw))
	assert.Empty(t, h.controller.written())
	assert.Empty(t, h.observer.diagnostics)
}

func TestJogStateGate(t *testing.T) {
	h := newHarness(t, Config{JogStateGate: true})
	idle(h)
	h.bridge.store.UpdateState(machine.MachineState{ActiveState: machine.StateRun})

	require.NoError(t, h.bridge.handleReport(context.Background(), report(0, 0, 16, 1)))

	assert.Empty(t, h.controller.written())
	require.Len(t, h.observer.diagnostics, 1)
	assert.Equal(t, "cannot jog in state Run", h.observer.diagnostics[0].Error())
}

func TestJogWithoutGate(t *testing.T) {
	h := newHarness(t, Config{JogStateGate: false})
	idle(h)
	h.bridge.store.UpdateState(machine.MachineState{ActiveState: machine.StateRun})

	require.NoError(t, h.bridge.handleReport(context.Background(), report(0, 0, 16, 1)))
	assert.Equal(t, []string{"$J=G21G91X1.000F500\n"}, h.controller.written())
}

func TestJogMissingSettingIsDiagnostic(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.bridge.handleReport(context.Background(), report(0, 0, 16, 1)))

	assert.Empty(t, h.controller.written())
	var missing *dispatch.MissingSetting
	require.Len(t, h.observer.diagnostics, 1)
	assert.True(t, errors.As(h.observer.diagnostics[0], &missing))
}

func TestDryRunLogsInsteadOfSending(t *testing.T) {
	h := newHarness(t, Config{Options: dispatch.Options{DryRunJog: true}})
	idle(h)

	require.NoError(t, h.bridge.handleReport(context.Background(), report(dispatch.ButtonReset, 0, 16, 1)))

	assert.Equal(t, []string{"$X\n"}, h.controller.written())
	require.Len(t, h.observer.commands, 2)
	assert.Equal(t, []bool{false, true}, h.observer.dryRuns)
	assert.Equal(t, uint64(1), h.bridge.stats.dryRunCommands.Load())
}

func TestControllerFailureIsFatal(t *testing.T) {
	h := newHarness(t, Config{})
	idle(h)
	h.controller.err = errors.New("socket closed")

	err := h.bridge.handleReport(context.Background(), report(dispatch.ButtonReset, 0, 16, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket closed")
}

func TestNoSerialPortIsDiagnostic(t *testing.T) {
	h := newHarness(t, Config{})
	idle(h)
	h.controller.err = cncjs.ErrNoPort

	require.NoError(t, h.bridge.handleReport(context.Background(), report(dispatch.ButtonReset, 0, 16, 0)))

	assert.Empty(t, h.observer.commands)
	require.Len(t, h.observer.diagnostics, 1)
	assert.ErrorIs(t, h.observer.diagnostics[0], cncjs.ErrNoPort)
	assert.Equal(t, uint64(0), h.bridge.stats.commandsSent.Load())

	h.controller.err = nil
	require.NoError(t, h.bridge.handleReport(context.Background(), report(0, 0, 16, 0)))
	require.NoError(t, h.bridge.handleReport(context.Background(), report(dispatch.ButtonReset, 0, 16, 0)))
	assert.Equal(t, []string{"$X\n"}, h.controller.written())
}

func TestStateNotificationRefreshesDisplay(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.bridge.handleState(machine.MachineState{
		ActiveState:     machine.StateIdle,
		MachinePosition: machine.Position{1.5, -2, 300},
		WorkPosition:    machine.Position{0, 0, 0},
	}))

	packets := h.device.sent()
	require.Len(t, packets, 3)

	want := pendant.NewCodec("").EncodeDisplay([]float64{1.5, -2, 300}, false)
	assert.Equal(t, want, packets)
	assert.Equal(t, machine.StateIdle, h.bridge.store.Snapshot().State.ActiveState)
}

func TestStateWithoutPositionSkipsDisplay(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.bridge.handleState(machine.MachineState{ActiveState: machine.StateIdle}))
	assert.Empty(t, h.device.sent())
}

func TestDisplayToggleButton(t *testing.T) {
	h := newHarness(t, Config{})
	idle(h)

	require.NoError(t, h.bridge.handleReport(context.Background(), report(dispatch.ButtonDisplayMode, 0, 16, 0)))

	assert.Equal(t, []bool{true}, h.observer.modes)
	packets := h.device.sent()
	require.Len(t, packets, 3)
	assert.Equal(t, pendant.NewCodec("").EncodeDisplay([]float64{4, 5, 6}, true), packets)
	assert.Empty(t, h.controller.written())
}

func TestToggleDisplayEvent(t *testing.T) {
	h := newHarness(t, Config{WorkCoords: true})
	idle(h)

	require.NoError(t, h.bridge.handle(context.Background(), toggleDisplayEvent{}))
	assert.Equal(t, []bool{false}, h.observer.modes)
	assert.Equal(t, "machine", h.bridge.Status().DisplayMode)
}

func TestSettingsEvent(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.bridge.handle(context.Background(), settingsEvent{settings: machine.Settings{"$110": 42}}))

	v, ok := h.bridge.store.Snapshot().Settings.Lookup("$110")
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func TestRunProcessesEventsInOrder(t *testing.T) {
	h := newHarness(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- h.bridge.Run(ctx) }()

	require.NoError(t, h.bridge.NotifySettings(machine.Settings{"$110": 800}))
	require.NoError(t, h.bridge.NotifyState(machine.MachineState{
		ActiveState:     machine.StateIdle,
		MachinePosition: machine.Position{0, 0, 0},
	}))
	require.NoError(t, h.bridge.SubmitReport(report(0, 0, 16, 1)))

	assert.Eventually(t, func() bool {
		return len(h.controller.written()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "$J=G21G91X1.000F800\n", h.controller.written()[0])

	cancel()
	require.NoError(t, <-errCh)
	assert.ErrorIs(t, h.bridge.SubmitReport(report(0, 0, 16, 1)), ErrStopped)
}

func TestRunReturnsFatalFailure(t *testing.T) {
	h := newHarness(t, Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- h.bridge.Run(context.Background()) }()

	h.bridge.Fail("cncjs", errors.New("serialport:error"))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cncjs failed")
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t, Config{})
	idle(h)

	st := h.bridge.Status()
	assert.Equal(t, h.bridge.ID().String(), st.ID)
	assert.Equal(t, "machine", st.DisplayMode)
	assert.Equal(t, machine.StateIdle, st.Machine.State.ActiveState)
}

func TestRunInitialisesDisplay(t *testing.T) {
	h := newHarness(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.bridge.Run(ctx) }()

	require.Eventually(t, func() bool { return len(h.device.sent()) == 3 }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	packets := h.device.sent()
	assert.Equal(t, []byte{0x06, 0xFE, 0xFD, 0x04, 0x01, 0x00, 0x00, 0x00}, packets[0])
}
