package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenPendantBridge/internal/bridge"
	"github.com/KevinKickass/OpenPendantBridge/internal/config"
	"github.com/KevinKickass/OpenPendantBridge/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	SessionID        string `json:"session_id"`
	PendantConnected bool   `json:"pendant_connected"`
	CNCjsConnected   bool   `json:"cncjs_connected"`
	SerialPort       string `json:"serial_port,omitempty"`
	Uptime           string `json:"uptime"`
}

type LifecycleManager interface {
	Config() *config.Config
	Storage() *storage.PostgresClient
	Bridge() *bridge.Bridge
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
