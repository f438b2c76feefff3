package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPendantBridge/internal/api/rest"
	"github.com/KevinKickass/OpenPendantBridge/internal/api/websocket"
	"github.com/KevinKickass/OpenPendantBridge/internal/auth"
	"github.com/KevinKickass/OpenPendantBridge/internal/bridge"
	"github.com/KevinKickass/OpenPendantBridge/internal/cncjs"
	"github.com/KevinKickass/OpenPendantBridge/internal/config"
	"github.com/KevinKickass/OpenPendantBridge/internal/interfaces"
	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
	"github.com/KevinKickass/OpenPendantBridge/internal/storage"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config  *config.Config
	storage *storage.PostgresClient
	deps    Dependencies
	logger  *zap.Logger

	device     PendantDevice
	controller ControllerClient
	bridge     *bridge.Bridge
	wsHub      *websocket.Hub
	journal    *storage.Journal

	restServer *rest.Server
	health     *HealthServer

	runCancel context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error

	listenersMu     sync.RWMutex
	statusListeners []chan SystemStatus

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager wires the bridge. storage may be nil (journal disabled).
func NewLifecycleManager(
	storage *storage.PostgresClient,
	cfg *config.Config,
	deps Dependencies,
	logger *zap.Logger,
) *LifecycleManager {
	return &LifecycleManager{
		config:          cfg,
		storage:         storage,
		deps:            deps,
		logger:          logger,
		currentState:    StateInitializing,
		shutdownChan:    make(chan struct{}),
		statusListeners: make([]chan SystemStatus, 0),
	}
}

// Start opens the pendant, connects to CNCjs and starts all servers.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting pendant bridge")
	lm.broadcastStatus()

	var err error
	lm.device, err = lm.deps.OpenPendant(lm.config.Pendant, lm.logger)
	if err != nil {
		return lm.failStart(fmt.Errorf("failed to open pendant: %w", err))
	}

	token, err := lm.cncjsToken()
	if err != nil {
		return lm.failStart(err)
	}

	lm.controller, err = lm.deps.DialCNCjs(ctx, cncjs.Config{
		Host:           lm.config.CNCjs.Host,
		Port:           lm.config.CNCjs.Port,
		Token:          token,
		SerialPort:     lm.config.CNCjs.SerialPort,
		Baudrate:       lm.config.CNCjs.Baudrate,
		ControllerType: lm.config.CNCjs.ControllerType,
		PingInterval:   lm.config.CNCjs.PingInterval,
	}, controllerEvents{lm}, lm.logger)
	if err != nil {
		return lm.failStart(err)
	}

	store := machine.NewStore(lm.logger)
	lm.bridge = bridge.New(bridge.Config{
		Options:      lm.config.ToOptions(),
		JogStateGate: lm.config.Pendant.JogStateGate,
		WorkCoords:   lm.config.Pendant.InitialWorkCoords,
	}, store, lm.device, lm.controller, lm.logger)

	runCtx, cancel := context.WithCancel(context.Background())
	lm.runCancel = cancel

	lm.wsHub = websocket.NewHub(lm.logger)
	lm.wsHub.SetStatusProvider(lm)
	lm.bridge.AddObserver(lm.wsHub)
	lm.goRun(func() { lm.wsHub.Run(runCtx) })
	transitions := store.Subscribe()
	lm.goRun(func() { lm.wsHub.WatchTransitions(runCtx, transitions) })

	if lm.storage != nil {
		lm.journal = storage.NewJournal(lm.bridge.ID(), lm.storage, lm.logger)
		lm.bridge.AddObserver(lm.journal)
		lm.goRun(func() { lm.journal.Run(runCtx) })
	}

	if err := lm.startGRPCServer(); err != nil {
		return lm.failStart(fmt.Errorf("failed to start gRPC: %w", err))
	}

	if err := lm.startRESTServer(); err != nil {
		return lm.failStart(fmt.Errorf("failed to start REST API: %w", err))
	}

	lm.goRun(func() {
		if err := lm.bridge.Run(runCtx); err != nil {
			lm.fatal(err)
		}
	})
	lm.goRun(func() {
		err := lm.device.ReadLoop(runCtx, func(raw []byte) {
			_ = lm.bridge.SubmitReport(raw)
		})
		if err != nil && runCtx.Err() == nil {
			lm.health.SetServing(ServicePendant, false)
			lm.bridge.Fail("pendant", err)
		}
	})
	lm.goRun(func() {
		if err := lm.controller.Run(runCtx); err != nil && runCtx.Err() == nil {
			lm.health.SetServing(ServiceCNCjs, false)
			lm.bridge.Fail("cncjs", err)
		}
	})

	lm.startedAt = time.Now()
	lm.setState(StateRunning)
	lm.health.SetAll(true)

	lm.logger.Info("System started successfully",
		zap.String("session", lm.bridge.ID().String()),
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("journal_enabled", lm.storage != nil))

	return nil
}

func (lm *LifecycleManager) cncjsToken() (string, error) {
	secret, err := lm.config.CNCjs.ResolveSecret()
	if err != nil {
		return "", fmt.Errorf("failed to resolve cncjs secret: %w", err)
	}

	token, err := auth.NewJWTHandler(secret, lm.config.CNCjs.AccessTokenTTL).GenerateCNCjsToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate cncjs token: %w", err)
	}
	return token, nil
}

func (lm *LifecycleManager) goRun(fn func()) {
	lm.wg.Add(1)
	go func() {
		defer lm.wg.Done()
		fn()
	}()
}

func (lm *LifecycleManager) failStart(err error) error {
	lm.logger.Error("Startup failed", zap.Error(err))
	lm.setError(err)
	lm.releaseResources(context.Background())
	return err
}

// fatal handles a terminal bridge error: the system goes to ERROR and shuts down.
func (lm *LifecycleManager) fatal(err error) {
	if s := lm.State(); s == StateStopping || s == StateStopped {
		return
	}
	lm.logger.Error("Bridge failed", zap.Error(err))
	lm.setError(err)
	if lm.health != nil {
		lm.health.SetAll(false)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lm.config.Server.ShutdownTimeout)
		defer cancel()
		lm.Shutdown(ctx)
	}()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.releaseResources(ctx)

		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) releaseResources(ctx context.Context) error {
	var errs []error

	if lm.health != nil {
		lm.health.SetAll(false)
	}

	if lm.restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
		cancel()
	}

	if lm.runCancel != nil {
		lm.runCancel()
	}

	if lm.controller != nil {
		lm.controller.Close()
	}
	if lm.device != nil {
		if err := lm.device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pendant close failed: %w", err))
		}
	}

	if lm.health != nil {
		lm.health.Stop()
	}

	done := make(chan struct{})
	go func() {
		lm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		errs = append(errs, fmt.Errorf("shutdown timeout exceeded"))
	}

	return errors.Join(errs...)
}

func (lm *LifecycleManager) startGRPCServer() error {
	h, err := NewHealthServer(lm.config.Server.GRPCPort, lm.logger)
	if err != nil {
		return err
	}
	lm.health = h
	lm.health.Serve()
	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	var jwt *auth.JWTHandler
	if secret := lm.config.Auth.GetJWTSecret(); secret != "" {
		jwt = auth.NewJWTHandler(secret, lm.config.Auth.AccessTokenTTL)
	} else {
		lm.logger.Warn("REST API authentication disabled",
			zap.String("secret_env", lm.config.Auth.JWTSecretEnv))
	}

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, jwt)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected system state change", zap.Error(err))
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

// Done is closed when the system has stopped.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

// Err returns the error that stopped the system, if any.
func (lm *LifecycleManager) Err() error {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.lastError
}

// State returns the current lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	startedAt := lm.startedAt
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:            state.String(),
		PendantConnected: lm.device != nil && state == StateRunning,
	}
	if lm.bridge != nil {
		status.SessionID = lm.bridge.ID().String()
	}
	if lm.controller != nil {
		status.CNCjsConnected = lm.controller.Connected()
		status.SerialPort = lm.controller.Port()
	}
	if !startedAt.IsZero() {
		status.Uptime = time.Since(startedAt).Round(time.Second).String()
	}
	return status
}

// GetStatus is sent to new websocket clients.
func (lm *LifecycleManager) GetStatus() any {
	status := map[string]any{
		"system": lm.GetCurrentStatus(),
	}
	if lm.bridge != nil {
		status["bridge"] = lm.bridge.Status()
	}
	return status
}

func (lm *LifecycleManager) getStatusInternal() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	status := SystemStatus{
		State:     lm.currentState,
		Timestamp: time.Now().Unix(),
	}
	if lm.lastError != nil {
		status.Error = lm.lastError.Error()
	}
	return status
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.getStatusInternal()

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
	ch := make(chan SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Storage returns the storage client
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Bridge returns the running bridge
func (lm *LifecycleManager) Bridge() *bridge.Bridge {
	return lm.bridge
}

// controllerEvents forwards CNCjs notifications into the bridge loop.
type controllerEvents struct {
	lm *LifecycleManager
}

func (e controllerEvents) OnState(state machine.MachineState) {
	if err := e.lm.bridge.NotifyState(state); err != nil {
		e.lm.logger.Debug("Dropping state, bridge stopped")
	}
}

func (e controllerEvents) OnSettings(settings machine.Settings) {
	if err := e.lm.bridge.NotifySettings(settings); err != nil {
		e.lm.logger.Debug("Dropping settings, bridge stopped")
	}
}
