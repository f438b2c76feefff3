package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KevinKickass/OpenPendantBridge/internal/dispatch"
	"github.com/KevinKickass/OpenPendantBridge/internal/pendant"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Pendant  PendantConfig  `mapstructure:"pendant" yaml:"pendant"`
	CNCjs    CNCjsConfig    `mapstructure:"cncjs" yaml:"cncjs"`
	Actions  ActionsConfig  `mapstructure:"actions" yaml:"actions"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port" yaml:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port" yaml:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type PendantConfig struct {
	VendorID          uint16        `mapstructure:"vendor_id" yaml:"vendor_id"`
	ProductID         uint16        `mapstructure:"product_id" yaml:"product_id"`
	AxisLetters       string        `mapstructure:"axis_letters" yaml:"axis_letters"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	JogStateGate      bool          `mapstructure:"jog_state_gate" yaml:"jog_state_gate"`
	InitialWorkCoords bool          `mapstructure:"initial_work_coords" yaml:"initial_work_coords"`
}

type CNCjsConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Secret         string        `mapstructure:"secret" yaml:"secret"`
	CNCRCPath      string        `mapstructure:"cncrc_path" yaml:"cncrc_path"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`
	SerialPort     string        `mapstructure:"serial_port" yaml:"serial_port"`
	Baudrate       int           `mapstructure:"baudrate" yaml:"baudrate"`
	ControllerType string        `mapstructure:"controller_type" yaml:"controller_type"`
	PingInterval   time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
}

type ActionsConfig struct {
	ProbeCommand  string            `mapstructure:"probe_command" yaml:"probe_command"`
	Macros        map[string]string `mapstructure:"macros" yaml:"macros"`
	DryRun        bool              `mapstructure:"dry_run" yaml:"dry_run"`
	DryRunButtons bool              `mapstructure:"dry_run_buttons" yaml:"dry_run_buttons"`
	DryRunJog     bool              `mapstructure:"dry_run_jog" yaml:"dry_run_jog"`
	DryRunProbe   bool              `mapstructure:"dry_run_probe" yaml:"dry_run_probe"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	Database       string `mapstructure:"database" yaml:"database"`
	User           string `mapstructure:"user" yaml:"user"`
	Password       string `mapstructure:"password" yaml:"password"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
}

// Auth Configuration (REST API bearer tokens)
type AuthConfig struct {
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env" yaml:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development" yaml:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	// XHC-HB04 wireless
	v.SetDefault("pendant.vendor_id", 0x10CE)
	v.SetDefault("pendant.product_id", 0xEB70)
	v.SetDefault("pendant.axis_letters", pendant.DefaultAxisLetters)
	v.SetDefault("pendant.read_timeout", "250ms")
	v.SetDefault("pendant.jog_state_gate", true)
	v.SetDefault("pendant.initial_work_coords", false)

	v.SetDefault("cncjs.host", "localhost")
	v.SetDefault("cncjs.port", 8000)
	v.SetDefault("cncjs.secret", "")
	v.SetDefault("cncjs.cncrc_path", "")
	v.SetDefault("cncjs.access_token_ttl", "720h")
	v.SetDefault("cncjs.serial_port", "COM4")
	v.SetDefault("cncjs.baudrate", 115200)
	v.SetDefault("cncjs.controller_type", "Grbl")
	v.SetDefault("cncjs.ping_interval", "0s")

	v.SetDefault("actions.probe_command", "")
	v.SetDefault("actions.macros", map[string]string{})
	v.SetDefault("actions.dry_run", false)
	v.SetDefault("actions.dry_run_buttons", false)
	v.SetDefault("actions.dry_run_jog", false)
	v.SetDefault("actions.dry_run_probe", false)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "pendant")
	v.SetDefault("database.user", "pendant")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("auth.jwt_secret_env", "XHC_API_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("logging.development", false)
}

// Load reads the YAML file at path (optional) and applies XHC_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	// Environment Variables mit Prefix XHC_, z.B. XHC_CNCJS_HOST
	v.SetEnvPrefix("XHC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	var errs []error

	letters := c.Pendant.AxisLetters
	if len(letters) == 0 || len(letters) > 6 {
		errs = append(errs, fmt.Errorf("pendant.axis_letters must have 1..6 letters, got %q", letters))
	}
	if c.Pendant.ReadTimeout <= 0 {
		errs = append(errs, errors.New("pendant.read_timeout must be positive"))
	}
	if c.CNCjs.Port <= 0 || c.CNCjs.Port > 65535 {
		errs = append(errs, fmt.Errorf("cncjs.port out of range: %d", c.CNCjs.Port))
	}
	if c.CNCjs.Baudrate <= 0 {
		errs = append(errs, fmt.Errorf("cncjs.baudrate must be positive, got %d", c.CNCjs.Baudrate))
	}
	if _, err := c.Actions.macroSlots(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a ActionsConfig) macroSlots() (map[int]string, error) {
	slots := make(map[int]string, len(a.Macros))
	for key, gcode := range a.Macros {
		slot, err := strconv.Atoi(key)
		if err != nil || slot < 1 || slot > dispatch.MacroSlots {
			return nil, fmt.Errorf("actions.macros: invalid slot %q (1..%d)", key, dispatch.MacroSlots)
		}
		if gcode != "" {
			slots[slot] = gcode
		}
	}
	return slots, nil
}

// ToOptions builds the immutable dispatch options. dry_run forces every dry-run flag.
func (c *Config) ToOptions() dispatch.Options {
	macros, _ := c.Actions.macroSlots()
	if macros == nil {
		macros = map[int]string{}
	}

	return dispatch.Options{
		AxisLetters:   c.Pendant.AxisLetters,
		ProbeCommand:  c.Actions.ProbeCommand,
		Macros:        macros,
		DryRunButtons: c.Actions.DryRun || c.Actions.DryRunButtons,
		DryRunJog:     c.Actions.DryRun || c.Actions.DryRunJog,
		DryRunProbe:   c.Actions.DryRun || c.Actions.DryRunProbe,
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// GetJWTSecret liefert das API-Secret aus der Environment Variable.
// Leer bedeutet: REST API ohne Authentifizierung.
func (a *AuthConfig) GetJWTSecret() string {
	if a.JWTSecretEnv == "" {
		return ""
	}
	return os.Getenv(a.JWTSecretEnv)
}

// Redacted returns a copy safe for printing.
func (c Config) Redacted() Config {
	if c.CNCjs.Secret != "" {
		c.CNCjs.Secret = "***"
	}
	if c.Database.Password != "" {
		c.Database.Password = "***"
	}
	return c
}
