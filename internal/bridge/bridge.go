package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenPendantBridge/internal/cncjs"
	"github.com/KevinKickass/OpenPendantBridge/internal/dispatch"
	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
	"github.com/KevinKickass/OpenPendantBridge/internal/pendant"
	"github.com/KevinKickass/OpenPendantBridge/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const eventBufferSize = 64

// ErrStopped is returned by Submit* once the loop has exited.
var ErrStopped = errors.New("bridge stopped")

// DisplayWriter sends feature reports to the pendant.
type DisplayWriter interface {
	SendFeatureReport(packet []byte) (int, error)
}

// CommandWriter sends text lines to the controller.
type CommandWriter interface {
	WriteLine(ctx context.Context, line string) error
}

// Observer is notified about bridge activity (websocket feed, journal).
type Observer interface {
	OnCommand(cmd types.Command, dryRun bool)
	OnDiagnostic(err error)
	OnDisplayMode(workCoords bool)
}

// Config carries the immutable settings of a Bridge.
type Config struct {
	Options      dispatch.Options
	JogStateGate bool
	WorkCoords   bool
}

// Status is the externally visible state of the bridge.
type Status struct {
	ID          string           `json:"id"`
	DisplayMode string           `json:"display_mode"`
	Machine     machine.Snapshot `json:"machine"`
	Stats       StatsSnapshot    `json:"stats"`
}

type event interface{}

type reportEvent struct{ raw []byte }
type stateEvent struct{ state machine.MachineState }
type settingsEvent struct{ settings machine.Settings }
type toggleDisplayEvent struct{}
type failureEvent struct {
	source string
	err    error
}

// Bridge routes pendant reports to the controller and controller state to the pendant LCD.
// All processing happens on the goroutine running Run, in arrival order.
type Bridge struct {
	id      uuid.UUID
	cfg     Config
	codec   *pendant.Codec
	store   *machine.Store
	display *pendant.DisplayMode
	buttons *dispatch.ButtonDispatcher
	jog     *dispatch.JogTranslator

	device     DisplayWriter
	controller CommandWriter
	observers  []Observer
	logger     *zap.Logger

	events chan event
	done   chan struct{}
	stats  Stats
}

func New(cfg Config, store *machine.Store, device DisplayWriter, controller CommandWriter, logger *zap.Logger) *Bridge {
	display := pendant.NewDisplayMode(cfg.WorkCoords)

	return &Bridge{
		id:         uuid.New(),
		cfg:        cfg,
		codec:      pendant.NewCodec(cfg.Options.AxisLetters),
		store:      store,
		display:    display,
		buttons:    dispatch.NewButtonDispatcher(cfg.Options, display),
		jog:        dispatch.NewJogTranslator(),
		device:     device,
		controller: controller,
		logger:     logger.With(zap.String("component", "bridge")),
		events:     make(chan event, eventBufferSize),
		done:       make(chan struct{}),
	}
}

// AddObserver registers an observer. Call before Run.
func (b *Bridge) AddObserver(o Observer) {
	b.observers = append(b.observers, o)
}

// ID identifies this bridge session.
func (b *Bridge) ID() uuid.UUID {
	return b.id
}

// Run processes events until ctx is cancelled or a collaborator fails.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)

	b.logger.Info("Bridge started", zap.String("session", b.id.String()))

	// LCD zeigt sofort etwas an
	initial := b.store.Snapshot().State
	if len(initial.MachinePosition) < 3 {
		initial.MachinePosition = machine.Position{0, 0, 0}
	}
	if len(initial.WorkPosition) < 3 {
		initial.WorkPosition = machine.Position{0, 0, 0}
	}
	if err := b.refreshDisplay(initial); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bridge stopped")
			return nil
		case ev := <-b.events:
			if err := b.handle(ctx, ev); err != nil {
				b.logger.Error("Bridge terminated", zap.Error(err))
				return err
			}
		}
	}
}

func (b *Bridge) handle(ctx context.Context, ev event) error {
	switch e := ev.(type) {
	case reportEvent:
		return b.handleReport(ctx, e.raw)
	case stateEvent:
		return b.handleState(e.state)
	case settingsEvent:
		b.store.UpdateSettings(e.settings)
		return nil
	case toggleDisplayEvent:
		return b.toggleDisplay()
	case failureEvent:
		return fmt.Errorf("%s failed: %w", e.source, e.err)
	default:
		return fmt.Errorf("unknown bridge event %T", ev)
	}
}

// SubmitReport queues a raw pendant report.
func (b *Bridge) SubmitReport(raw []byte) error {
	return b.submit(reportEvent{raw: raw})
}

// NotifyState queues a controller state notification.
func (b *Bridge) NotifyState(state machine.MachineState) error {
	return b.submit(stateEvent{state: state})
}

// NotifySettings queues a controller settings notification.
func (b *Bridge) NotifySettings(settings machine.Settings) error {
	return b.submit(settingsEvent{settings: settings})
}

// ToggleDisplay flips the LCD coordinate mode as if the pendant button was pressed.
func (b *Bridge) ToggleDisplay() error {
	return b.submit(toggleDisplayEvent{})
}

// Fail reports a terminal collaborator error; Run returns it.
func (b *Bridge) Fail(source string, err error) {
	_ = b.submit(failureEvent{source: source, err: err})
}

func (b *Bridge) submit(ev event) error {
	select {
	case <-b.done:
		return ErrStopped
	default:
	}

	select {
	case b.events <- ev:
		return nil
	case <-b.done:
		return ErrStopped
	}
}

func (b *Bridge) handleReport(ctx context.Context, raw []byte) error {
	b.stats.reports.Add(1)

	in, err := b.codec.Decode(raw)
	if err != nil {
		b.stats.decodeErrors.Add(1)
		b.diagnostic(fmt.Errorf("decode report % X: %w", raw, err))
		return nil
	}

	snap := b.store.Snapshot()

	res := b.buttons.OnReport(in, snap)
	if in.Axis == pendant.AxisOff {
		return nil
	}

	for _, diag := range res.Diagnostics {
		b.diagnostic(diag)
	}

	for _, cmd := range res.Commands {
		if err := b.send(ctx, cmd); err != nil {
			return err
		}
	}

	if res.DisplayToggled {
		if err := b.displayChanged(snap.State); err != nil {
			return err
		}
	}

	cmd, err := b.jog.OnJog(in, snap.Settings)
	if err != nil {
		b.diagnostic(err)
		return nil
	}
	if cmd == nil {
		return nil
	}

	if b.cfg.JogStateGate {
		if err := dispatch.JogGate(snap.State.ActiveState); err != nil {
			b.diagnostic(err)
			return nil
		}
	}

	return b.send(ctx, *cmd)
}

func (b *Bridge) handleState(state machine.MachineState) error {
	b.store.UpdateState(state)
	return b.refreshDisplay(state)
}

func (b *Bridge) toggleDisplay() error {
	b.display.Toggle()
	return b.displayChanged(b.store.Snapshot().State)
}

func (b *Bridge) displayChanged(state machine.MachineState) error {
	work := b.display.WorkCoords()

	b.logger.Info("Display mode changed", zap.String("mode", b.display.String()))
	for _, o := range b.observers {
		o.OnDisplayMode(work)
	}

	return b.refreshDisplay(state)
}

// refreshDisplay sends the position selected by the display mode to the LCD.
func (b *Bridge) refreshDisplay(state machine.MachineState) error {
	work := b.display.WorkCoords()

	position := state.MachinePosition
	if work {
		position = state.WorkPosition
	}

	packets := b.codec.EncodeDisplay(position, work)
	if len(packets) == 0 {
		return nil
	}

	for _, p := range packets {
		if _, err := b.device.SendFeatureReport(p); err != nil {
			return fmt.Errorf("display update failed: %w", err)
		}
	}

	b.stats.displayUpdates.Add(1)
	return nil
}

func (b *Bridge) send(ctx context.Context, cmd types.Command) error {
	if cmd.Kind == types.CommandPacket {
		if _, err := b.device.SendFeatureReport(cmd.Packet); err != nil {
			return fmt.Errorf("pendant write failed: %w", err)
		}
		return nil
	}

	dryRun := b.cfg.Options.DryRun(cmd.Source)
	if dryRun {
		b.stats.dryRunCommands.Add(1)
		b.logger.Info("Command (dry run)",
			zap.String("source", string(cmd.Source)),
			zap.String("command", cmd.String()),
			zap.Bool("dry_run", true))
	} else {
		err := b.controller.WriteLine(ctx, cmd.Line())
		if errors.Is(err, cncjs.ErrNoPort) {
			// Port noch nicht offen oder geschlossen: Befehl verwerfen
			b.diagnostic(fmt.Errorf("command %s dropped: %w", cmd, err))
			return nil
		}
		if err != nil {
			return fmt.Errorf("controller write failed: %w", err)
		}
		b.stats.commandsSent.Add(1)
		b.logger.Info("Command sent",
			zap.String("source", string(cmd.Source)),
			zap.String("command", cmd.String()))
	}

	for _, o := range b.observers {
		o.OnCommand(cmd, dryRun)
	}
	return nil
}

func (b *Bridge) diagnostic(err error) {
	b.stats.recordDiagnostic(err)
	b.logger.Warn("Pendant action refused", zap.Error(err))

	for _, o := range b.observers {
		o.OnDiagnostic(err)
	}
}

// Status returns a consistent view for the status API.
func (b *Bridge) Status() Status {
	return Status{
		ID:          b.id.String(),
		DisplayMode: b.display.String(),
		Machine:     b.store.Snapshot(),
		Stats:       b.stats.Snapshot(),
	}
}

// Store exposes the machine state store.
func (b *Bridge) Store() *machine.Store {
	return b.store
}
