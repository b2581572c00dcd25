// Package config handles configuration management with validation
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App          AppConfig                 `yaml:"app"`
	Exchanges    map[string]ExchangeConfig `yaml:"exchanges"`
	Trading      TradingConfig             `yaml:"trading"`
	System       SystemConfig              `yaml:"system"`
	RiskControl  RiskControlConfig         `yaml:"risk_control"`
	Timing       TimingConfig              `yaml:"timing"`
	Concurrency  ConcurrencyConfig         `yaml:"concurrency"`
	Telemetry    TelemetryConfig           `yaml:"telemetry"`
	DecisionCore DecisionCoreConfig        `yaml:"decision_core"`
}

// DecisionCoreConfig carries every numeric threshold named in the regime
// machine, risk triggers, grid generator, skew engine, de-risk engine,
// and order manager — one field per threshold, so the whole decision
// core's behavior is reproducible from this one config tree.
type DecisionCoreConfig struct {
	Inventory  InventoryThresholds  `yaml:"inventory"`
	RiskBudget RiskBudgetThresholds `yaml:"risk_budget"`
	Structural StructuralThresholds `yaml:"structural"`
	Emergency  EmergencyThresholds  `yaml:"emergency"`
	PriceBoundary PriceBoundaryThresholds `yaml:"price_boundary"`

	Grid  GridThresholds  `yaml:"grid"`
	Skew  SkewThresholds  `yaml:"skew"`
	Derisk DeriskThresholds `yaml:"derisk"`

	OrderManager OrderManagerThresholds `yaml:"order_manager"`
}

// InventoryThresholds mirrors internal/riskengine.InventoryTrigger's fields.
type InventoryThresholds struct {
	Warn         float64 `yaml:"warn" validate:"min=0,max=1"`
	Damage       float64 `yaml:"damage" validate:"min=0,max=1"`
	Stop         float64 `yaml:"stop" validate:"min=0,max=1"`
	BackToNormal float64 `yaml:"back_to_normal" validate:"min=0,max=1"`
}

// RiskBudgetThresholds mirrors internal/riskengine.RiskBudgetTrigger's fields.
type RiskBudgetThresholds struct {
	MarginCap float64 `yaml:"margin_cap" validate:"min=0,max=1"`
	MaxDrawdown float64 `yaml:"max_drawdown" validate:"min=0,max=1"`
}

// StructuralThresholds mirrors internal/riskengine.StructuralTrigger's fields.
type StructuralThresholds struct {
	ConfirmMinutes int `yaml:"confirm_minutes" validate:"min=1"`
}

// EmergencyThresholds mirrors internal/riskengine.EmergencyTrigger's fields.
type EmergencyThresholds struct {
	LiqDistanceThreshold   float64 `yaml:"liq_distance_threshold" validate:"min=0,max=1"`
	MarginRatioThreshold   float64 `yaml:"margin_ratio_threshold" validate:"min=0"`
	APIFaultMaxConsecutive int     `yaml:"api_fault_max_consecutive" validate:"min=1"`
	DataStaleSeconds       int     `yaml:"data_stale_seconds" validate:"min=1"`
	PriceGapATRMult        float64 `yaml:"price_gap_atr_mult" validate:"min=0"`
}

// PriceBoundaryThresholds mirrors internal/riskengine.PriceBoundaryTrigger's fields.
type PriceBoundaryThresholds struct {
	BufferATRMult       float64 `yaml:"buffer_atr_mult" validate:"min=0"`
	MinStateHoldMinutes int     `yaml:"min_state_hold_minutes" validate:"min=0"`
}

// GridThresholds mirrors internal/gridgen.Config's fields.
type GridThresholds struct {
	BuyActiveCount      int     `yaml:"buy_active_count" validate:"min=1"`
	SellActiveCount     int     `yaml:"sell_active_count" validate:"min=1"`
	CoreCompressFactor  float64 `yaml:"core_compress_factor" validate:"min=0"`
	BufferExpandFactor  float64 `yaml:"buffer_expand_factor" validate:"min=0"`
	EdgeDecayFactor     float64 `yaml:"edge_decay_factor" validate:"min=0,max=1"`
	EdgeDecayRungs      int     `yaml:"edge_decay_rungs" validate:"min=0"`
}

// SkewThresholds mirrors internal/skew.Config's fields.
type SkewThresholds struct {
	SkewMax             float64 `yaml:"skew_max" validate:"min=0,max=1"`
	SkewPerInvUnit      float64 `yaml:"skew_per_inv_unit" validate:"min=0"`
	InvThresholdForSkew float64 `yaml:"inv_threshold_for_skew" validate:"min=0,max=1"`
}

// DeriskThresholds mirrors internal/derisk.Config's fields.
type DeriskThresholds struct {
	HarvestProfitThreshold float64 `yaml:"harvest_profit_threshold" validate:"min=0"`
	HarvestInventoryRatio  float64 `yaml:"harvest_inventory_ratio" validate:"min=0,max=1"`
	HarvestRequireMinutes  int     `yaml:"harvest_require_minutes" validate:"min=0"`
	DeriskEfficiencyDrop   float64 `yaml:"derisk_efficiency_drop" validate:"min=0,max=1"`
	DeriskMinInventory     float64 `yaml:"derisk_min_inventory" validate:"min=0,max=1"`
	HouseMoneyProfitPct    float64 `yaml:"house_money_profit_pct" validate:"min=0"`
	HouseMoneyReduceTarget float64 `yaml:"house_money_reduce_target" validate:"min=0,max=1"`
	ReduceBatchSize        float64 `yaml:"reduce_batch_size" validate:"min=0,max=1"`
	ReduceCooldownMinutes  int     `yaml:"reduce_cooldown_minutes" validate:"min=0"`
}

// OrderManagerThresholds mirrors internal/ordermgr.ThrottleConfig's fields.
type OrderManagerThresholds struct {
	MinOrderLifetimeSeconds     int     `yaml:"min_order_lifetime_seconds" validate:"min=0"`
	PriceChangeThresholdATRMult float64 `yaml:"price_change_threshold_atr_mult" validate:"min=0"`
	CancelRateLimitPerMinute    int     `yaml:"cancel_rate_limit_per_minute" validate:"min=1"`
	FreezeDurationSeconds       int     `yaml:"freeze_duration_seconds" validate:"min=0"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	CurrentExchange string   `yaml:"current_exchange"` // Legacy: primary exchange
	ActiveExchanges []string `yaml:"active_exchanges"` // List of active exchanges
	EngineType      string   `yaml:"engine_type" validate:"required,oneof=simple dbos"`
	DatabaseURL     string   `yaml:"database_url"` // Required for DBOS
}

// ExchangeConfig contains exchange-specific configuration
type ExchangeConfig struct {
	APIKey        string  `yaml:"api_key" validate:"required"`
	SecretKey     string  `yaml:"secret_key" validate:"required"`
	Passphrase    string  `yaml:"passphrase"` // Required for some exchanges
	BaseURL       string  `yaml:"base_url"`   // Optional override for API URL
	FeeRate       float64 `yaml:"fee_rate" validate:"required,min=0,max=1"`
	TLSCertFile   string  `yaml:"tls_cert_file"`   // TLS certificate file for gRPC (remote only)
	TLSKeyFile    string  `yaml:"tls_key_file"`    // TLS key file for gRPC server (remote only)
	TLSServerName string  `yaml:"tls_server_name"` // TLS server name for verification (remote only)
	GRPCAPIKeys   string  `yaml:"grpc_api_keys"`   // Comma-separated API keys for gRPC authentication (server only)
	GRPCAPIKey    string  `yaml:"grpc_api_key"`    // Single API key for gRPC client authentication
	GRPCRateLimit int     `yaml:"grpc_rate_limit"` // Rate limit per API key (requests per second)
}

// TradingConfig contains trading parameters
type TradingConfig struct {
	StrategyType              string  `yaml:"strategy_type" validate:"oneof=grid arbitrage"`
	Symbol                    string  `yaml:"symbol" validate:"required"`
	PriceInterval             float64 `yaml:"price_interval" validate:"required_if=StrategyType grid,min=0"`
	OrderQuantity             float64 `yaml:"order_quantity" validate:"required,min=0.00001"`
	MinOrderValue             float64 `yaml:"min_order_value" validate:"required,min=0"`
	BuyWindowSize             int     `yaml:"buy_window_size" validate:"required_if=StrategyType grid,min=1,max=200"`
	SellWindowSize            int     `yaml:"sell_window_size" validate:"required_if=StrategyType grid,min=1,max=200"`
	ReconcileInterval         int     `yaml:"reconcile_interval" validate:"required,min=1,max=3600"`
	OrderCleanupThreshold     int     `yaml:"order_cleanup_threshold" validate:"required,min=1,max=1000"`
	CleanupBatchSize          int     `yaml:"cleanup_batch_size" validate:"required,min=1,max=100"`
	MarginLockDurationSeconds int     `yaml:"margin_lock_duration_seconds" validate:"required,min=1,max=300"`
	PositionSafetyCheck       int     `yaml:"position_safety_check" validate:"required,min=1,max=1000"`
	GridMode                  string  `yaml:"grid_mode" validate:"oneof=long neutral"`
	DynamicInterval           bool    `yaml:"dynamic_interval"`
	VolatilityScale           float64 `yaml:"volatility_scale" validate:"min=0,max=100"`
	InventorySkewFactor       float64 `yaml:"inventory_skew_factor" validate:"min=0,max=1"`

	// Arbitrage Specific
	ArbitrageSpotExchange string  `yaml:"arbitrage_spot_exchange"`
	ArbitragePerpExchange string  `yaml:"arbitrage_perp_exchange"`
	MinSpreadAPR          float64 `yaml:"min_spread_apr"`
	ExitSpreadAPR         float64 `yaml:"exit_spread_apr"`
	LiquidationThreshold  float64 `yaml:"liquidation_threshold"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel      string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit  bool   `yaml:"cancel_on_exit"`
	AgentGRPCPort string `yaml:"agent_grpc_port"` // Port for agent observability API (default: 50052)
}

// RiskControlConfig contains risk control settings
type RiskControlConfig struct {
	Enabled           bool     `yaml:"enabled"`
	MonitorSymbols    []string `yaml:"monitor_symbols" validate:"required,min=1,max=10"`
	Interval          string   `yaml:"interval" validate:"required,oneof=1m 3m 5m"`
	VolumeMultiplier  float64  `yaml:"volume_multiplier" validate:"required,min=1,max=10"`
	AverageWindow     int      `yaml:"average_window" validate:"required,min=5,max=100"`
	RecoveryThreshold int      `yaml:"recovery_threshold" validate:"required,min=1,max=10"`
	GlobalStrategy    string   `yaml:"global_strategy" validate:"oneof=Any All"`
}

// TimingConfig contains timing-related settings
type TimingConfig struct {
	WebsocketReconnectDelay    int `yaml:"websocket_reconnect_delay" validate:"min=1,max=300"`
	WebsocketWriteWait         int `yaml:"websocket_write_wait" validate:"min=1,max=300"`
	WebsocketPongWait          int `yaml:"websocket_pong_wait" validate:"min=1,max=300"`
	WebsocketPingInterval      int `yaml:"websocket_ping_interval" validate:"min=1,max=300"`
	ListenKeyKeepaliveInterval int `yaml:"listen_key_keepalive_interval" validate:"min=1,max=3600"`
	PriceSendInterval          int `yaml:"price_send_interval" validate:"min=1,max=1000"`
	RateLimitRetryDelay        int `yaml:"rate_limit_retry_delay" validate:"min=1,max=300"`
	OrderRetryDelay            int `yaml:"order_retry_delay" validate:"min=1,max=10000"`
	PricePollInterval          int `yaml:"price_poll_interval" validate:"min=1,max=10000"`
	StatusPrintInterval        int `yaml:"status_print_interval" validate:"min=1,max=60"`
	OrderCleanupInterval       int `yaml:"order_cleanup_interval" validate:"min=1,max=300"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	RiskPoolSize        int `yaml:"risk_pool_size" validate:"min=1,max=100"`
	RiskPoolBuffer      int `yaml:"risk_pool_buffer" validate:"min=1,max=10000"`
	BroadcastPoolSize   int `yaml:"broadcast_pool_size" validate:"min=1,max=100"`
	BroadcastPoolBuffer int `yaml:"broadcast_pool_buffer" validate:"min=1,max=10000"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	// Validate app config
	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate exchanges
	if err := c.validateExchanges(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate trading config
	if err := c.validateTradingConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate system config
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate risk control config
	if err := c.validateRiskControlConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate timing config
	if err := c.validateTimingConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate concurrency config
	if err := c.validateConcurrencyConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate decision-core hard invariants
	if err := c.validateDecisionCoreConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validExchanges := []string{"binance", "bitget", "gate", "okx", "bybit", "mock", "remote", "binance_spot"}

	// Fallback logic: If ActiveExchanges is empty, use CurrentExchange
	if len(c.App.ActiveExchanges) == 0 {
		if c.App.CurrentExchange != "" {
			c.App.ActiveExchanges = []string{c.App.CurrentExchange}
		} else {
			return ValidationError{
				Field:   "app.active_exchanges",
				Message: "at least one exchange must be active",
			}
		}
	}

	for _, ex := range c.App.ActiveExchanges {
		if !contains(validExchanges, ex) {
			return ValidationError{
				Field:   "app.active_exchanges",
				Value:   ex,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(validExchanges, ", ")),
			}
		}

		if ex == "mock" || ex == "remote" {
			continue
		}

		if _, exists := c.Exchanges[ex]; !exists {
			return ValidationError{
				Field:   "app.active_exchanges",
				Value:   ex,
				Message: "exchange configuration not found in exchanges section",
			}
		}
	}

	return nil
}

func (c *Config) validateExchanges() error {
	if len(c.Exchanges) == 0 {
		return ValidationError{
			Field:   "exchanges",
			Message: "at least one exchange must be configured",
		}
	}

	for name, exchange := range c.Exchanges {
		// Skip validation for remote exchange (no API keys needed)
		if name == "remote" {
			continue
		}

		if exchange.APIKey == "" {
			return ValidationError{
				Field:   fmt.Sprintf("exchanges.%s.api_key", name),
				Message: "API key is required",
			}
		}
		if exchange.SecretKey == "" {
			return ValidationError{
				Field:   fmt.Sprintf("exchanges.%s.secret_key", name),
				Message: "secret key is required",
			}
		}
	}

	return nil
}

func (c *Config) validateTradingConfig() error {
	if c.Trading.Symbol == "" {
		return ValidationError{
			Field:   "trading.symbol",
			Message: "trading symbol is required",
		}
	}

	if c.Trading.StrategyType == "grid" {
		if c.Trading.PriceInterval <= 0 {
			return ValidationError{
				Field:   "trading.price_interval",
				Value:   c.Trading.PriceInterval,
				Message: "price interval must be positive",
			}
		}
	}

	if c.Trading.OrderQuantity <= 0 {
		return ValidationError{
			Field:   "trading.order_quantity",
			Value:   c.Trading.OrderQuantity,
			Message: "order quantity must be positive",
		}
	}

	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateRiskControlConfig() error {
	if !c.RiskControl.Enabled {
		return nil // Skip validation if disabled
	}

	if len(c.RiskControl.MonitorSymbols) == 0 {
		return ValidationError{
			Field:   "risk_control.monitor_symbols",
			Message: "at least one monitor symbol required when risk control is enabled",
		}
	}

	return nil
}

func (c *Config) validateTimingConfig() error {
	return nil
}

func (c *Config) validateConcurrencyConfig() error {
	return nil
}

// validateDecisionCoreConfig enforces the hard invariants that must abort
// startup rather than merely warn: inventory threshold ordering, the
// edge-decay factor's open interval, the skew cap, and the two
// dangerous-combination checks (inventory stop/damage spread, minimum
// liquidation-distance threshold).
func (c *Config) validateDecisionCoreConfig() error {
	inv := c.DecisionCore.Inventory
	if !(inv.BackToNormal < inv.Warn && inv.Warn < inv.Damage && inv.Damage < inv.Stop) {
		return ValidationError{
			Field:   "decision_core.inventory",
			Value:   fmt.Sprintf("back_to_normal=%.2f warn=%.2f damage=%.2f stop=%.2f", inv.BackToNormal, inv.Warn, inv.Damage, inv.Stop),
			Message: "inventory thresholds must satisfy back_to_normal < warn < damage < stop",
		}
	}
	if inv.Stop-inv.Damage < 0.10 {
		return ValidationError{
			Field:   "decision_core.inventory",
			Value:   inv.Stop - inv.Damage,
			Message: "stop - damage spread must be at least 0.10",
		}
	}

	grid := c.DecisionCore.Grid
	if !(grid.EdgeDecayFactor > 0 && grid.EdgeDecayFactor < 1) {
		return ValidationError{
			Field:   "decision_core.grid.edge_decay_factor",
			Value:   grid.EdgeDecayFactor,
			Message: "must lie strictly between 0 and 1",
		}
	}

	if c.DecisionCore.Skew.SkewMax > 0.25 {
		return ValidationError{
			Field:   "decision_core.skew.skew_max",
			Value:   c.DecisionCore.Skew.SkewMax,
			Message: "must not exceed 0.25",
		}
	}

	if c.DecisionCore.Emergency.LiqDistanceThreshold < 0.02 {
		return ValidationError{
			Field:   "decision_core.emergency.liq_distance_threshold",
			Value:   c.DecisionCore.Emergency.LiqDistanceThreshold,
			Message: "must be at least 0.02",
		}
	}

	return nil
}

// Hash returns the first 8 hex characters of the SHA-256 digest over the
// canonicalized (YAML-marshaled) config tree, embedded in every
// param_update audit event and the warm-restart snapshot.
func (c *Config) Hash() string {
	data, _ := yaml.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:8]
}

// GetCurrentExchangeConfig returns the configuration for the currently selected exchange
func (c *Config) GetCurrentExchangeConfig() (*ExchangeConfig, error) {
	exchange, exists := c.Exchanges[c.App.CurrentExchange]
	if !exists {
		return nil, fmt.Errorf("exchange configuration not found for: %s", c.App.CurrentExchange)
	}
	return &exchange, nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	// Create a copy with sensitive data masked
	configCopy := *c
	configCopy.Exchanges = make(map[string]ExchangeConfig, len(c.Exchanges))
	for name, exchange := range c.Exchanges {
		exchange.APIKey = maskString(exchange.APIKey)
		exchange.SecretKey = maskString(exchange.SecretKey)
		exchange.GRPCAPIKeys = maskString(exchange.GRPCAPIKeys)
		exchange.GRPCAPIKey = maskString(exchange.GRPCAPIKey)
		configCopy.Exchanges[name] = exchange
	}

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		value := os.Getenv(key)
		if value == "" && isCriticalEnvVar(key) {
			return ""
		}
		return value
	})
}

// isCriticalEnvVar checks if an environment variable is critical for operation
func isCriticalEnvVar(key string) bool {
	criticalVars := []string{
		"BINANCE_API_KEY", "BINANCE_SECRET_KEY",
		"OKX_API_KEY", "OKX_SECRET_KEY", "OKX_PASSPHRASE",
		"BYBIT_API_KEY", "BYBIT_SECRET_KEY",
	}
	return contains(criticalVars, key)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			CurrentExchange: "binance",
			ActiveExchanges: []string{"binance", "binance_spot"},
			EngineType:      "simple",
		},

		Exchanges: map[string]ExchangeConfig{
			"binance": {
				APIKey:    "test_api_key",
				SecretKey: "test_secret_key",
				FeeRate:   0.0002,
			},
			"binance_spot": {
				APIKey:    "test_api_key",
				SecretKey: "test_secret_key",
				FeeRate:   0.0001,
			},
		},
		Trading: TradingConfig{
			StrategyType:              "grid",
			Symbol:                    "BTCUSDT",
			PriceInterval:             1.0,
			OrderQuantity:             30.0,
			MinOrderValue:             6.0,
			BuyWindowSize:             10,
			SellWindowSize:            10,
			ReconcileInterval:         60,
			OrderCleanupThreshold:     50,
			CleanupBatchSize:          10,
			MarginLockDurationSeconds: 10,
			PositionSafetyCheck:       100,
			GridMode:                  "long",
			DynamicInterval:           false,
			VolatilityScale:           1.0,
			InventorySkewFactor:       0.0,

			// Arbitrage Specific
			ArbitrageSpotExchange: "binance_spot",
			ArbitragePerpExchange: "binance",
			MinSpreadAPR:          0.10,
			ExitSpreadAPR:         0.01,
			LiquidationThreshold:  0.10,
		},
		System: SystemConfig{
			LogLevel:     "INFO",
			CancelOnExit: true,
		},
		RiskControl: RiskControlConfig{
			Enabled:        true,
			MonitorSymbols: []string{"BTCUSDT", "ETHUSDT"},
			Interval:       "1m",
		},
		DecisionCore: DecisionCoreConfig{
			Inventory: InventoryThresholds{
				Warn:         0.55,
				Damage:       0.70,
				Stop:         0.85,
				BackToNormal: 0.40,
			},
			RiskBudget: RiskBudgetThresholds{
				MarginCap:   0.80,
				MaxDrawdown: 0.15,
			},
			Structural: StructuralThresholds{
				ConfirmMinutes: 240,
			},
			Emergency: EmergencyThresholds{
				LiqDistanceThreshold:   0.03,
				MarginRatioThreshold:   1.2,
				APIFaultMaxConsecutive: 3,
				DataStaleSeconds:       30,
				PriceGapATRMult:        5.0,
			},
			PriceBoundary: PriceBoundaryThresholds{
				BufferATRMult:       0.5,
				MinStateHoldMinutes: 15,
			},
			Grid: GridThresholds{
				BuyActiveCount:     5,
				SellActiveCount:    5,
				CoreCompressFactor: 0.7,
				BufferExpandFactor: 1.3,
				EdgeDecayFactor:    0.7,
				EdgeDecayRungs:     2,
			},
			Skew: SkewThresholds{
				SkewMax:             0.25,
				SkewPerInvUnit:      0.1,
				InvThresholdForSkew: 0.30,
			},
			Derisk: DeriskThresholds{
				HarvestProfitThreshold: 0.02,
				HarvestInventoryRatio:  0.35,
				HarvestRequireMinutes:  60,
				DeriskEfficiencyDrop:   0.30,
				DeriskMinInventory:     0.20,
				HouseMoneyProfitPct:    0.05,
				HouseMoneyReduceTarget: 0.50,
				ReduceBatchSize:        0.10,
				ReduceCooldownMinutes:  15,
			},
			OrderManager: OrderManagerThresholds{
				MinOrderLifetimeSeconds:     30,
				PriceChangeThresholdATRMult: 0.1,
				CancelRateLimitPerMinute:    10,
				FreezeDurationSeconds:       60,
			},
		},
	}
}
