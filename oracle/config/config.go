package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
)

const fileName = "config.toml"

var (
	globalConfig configData
	home         string
	mu           sync.RWMutex
)

type configData struct {
	Ledger    ledgerConfig    `toml:"ledger"`
	Contracts contractsConfig `toml:"contracts"`
	Oracles   oraclesConfig   `toml:"oracles"`
	Accounts  accountsConfig  `toml:"accounts"`
	HTTP      httpConfig      `toml:"http"`
	Log       logConfig       `toml:"log"`
}

type ledgerConfig struct {
	URL            string `toml:"url"`
	WSURL          string `toml:"ws_url"`
	FromBlock      uint64 `toml:"from_block"`
	CallTimeout    string `toml:"call_timeout"`
	ReceiptTimeout string `toml:"receipt_timeout"`
}

type contractsConfig struct {
	AppAddress      string `toml:"app_address"`
	DataAddress     string `toml:"data_address"`
	AppArtifact     string `toml:"app_artifact"`
	DataArtifact    string `toml:"data_artifact"`
	AuthoriseCaller bool   `toml:"authorise_caller"`
}

type oraclesConfig struct {
	PoolSize                int    `toml:"pool_size"`
	GasLimit                uint64 `toml:"gas_limit"`
	RegistrationConcurrency int    `toml:"registration_concurrency"`
	Workers                 int    `toml:"workers"`
	QueueSize               int    `toml:"queue_size"`
}

type accountsConfig struct {
	Mnemonic string `toml:"mnemonic"`
	Count    int    `toml:"count"`
}

type httpConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type logConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

func defaultConfig() configData {
	return configData{
		Ledger: ledgerConfig{
			URL:            "http://127.0.0.1:8545",
			WSURL:          "ws://127.0.0.1:8545",
			FromBlock:      0,
			CallTimeout:    "30s",
			ReceiptTimeout: "60s",
		},
		Contracts: contractsConfig{
			AppAddress:      "0x0000000000000000000000000000000000000000",
			DataAddress:     "0x0000000000000000000000000000000000000000",
			AuthoriseCaller: true,
		},
		Oracles: oraclesConfig{
			PoolSize:                25,
			GasLimit:                4500000,
			RegistrationConcurrency: 8,
			Workers:                 8,
			QueueSize:               256,
		},
		Accounts: accountsConfig{
			Count: 50,
		},
		HTTP: httpConfig{
			Enabled: true,
			Listen:  ":3000",
		},
		Log: logConfig{
			Level: "info",
		},
	}
}

// Load reads <homeDir>/config.toml, writing a default one first if it does not exist.
func Load(homeDir string) error {
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	path := filepath.Join(homeDir, fileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefaultConfig(path); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}

	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mu.Lock()
	globalConfig = cfg
	home = homeDir
	mu.Unlock()

	log.Infof("Loaded config from %s", path)
	return nil
}

func DefaultHome() string {
	osHome, err := os.UserHomeDir()
	if err != nil {
		return ".oracled"
	}

	return filepath.Join(osHome, ".oracled")
}

func createDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := toml.Marshal(defaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validate(cfg configData) error {
	if cfg.Ledger.URL == "" {
		return fmt.Errorf("ledger url is required")
	}

	if !common.IsHexAddress(cfg.Contracts.AppAddress) {
		return fmt.Errorf("app contract address %q is not a hex address", cfg.Contracts.AppAddress)
	}

	if !common.IsHexAddress(cfg.Contracts.DataAddress) {
		return fmt.Errorf("data contract address %q is not a hex address", cfg.Contracts.DataAddress)
	}

	if cfg.Oracles.PoolSize < 1 {
		return fmt.Errorf("oracle pool size must be at least 1")
	}

	if cfg.Oracles.GasLimit == 0 {
		return fmt.Errorf("gas limit is required")
	}

	if cfg.Oracles.Workers < 1 || cfg.Oracles.QueueSize < 1 || cfg.Oracles.RegistrationConcurrency < 1 {
		return fmt.Errorf("workers, queue size and registration concurrency must be positive")
	}

	if _, err := time.ParseDuration(cfg.Ledger.CallTimeout); err != nil {
		return fmt.Errorf("invalid call timeout: %w", err)
	}

	if _, err := time.ParseDuration(cfg.Ledger.ReceiptTimeout); err != nil {
		return fmt.Errorf("invalid receipt timeout: %w", err)
	}

	if cfg.Accounts.Mnemonic != "" && cfg.Accounts.Count <= cfg.Oracles.PoolSize {
		return fmt.Errorf("accounts count %d must exceed the pool size %d (account 0 is the owner)", cfg.Accounts.Count, cfg.Oracles.PoolSize)
	}

	return nil
}

func Print() {
	log.Infof("%-18s: %s", "Home", Home())
	log.Infof("%-18s: %s", "Ledger URL", LedgerURL())
	log.Infof("%-18s: %s", "Ledger WS URL", LedgerWSURL())
	log.Infof("%-18s: %d", "From Block", FromBlock())
	log.Infof("%-18s: %s", "App Contract", AppAddress().Hex())
	log.Infof("%-18s: %s", "Data Contract", DataAddress().Hex())
	log.Infof("%-18s: %d", "Pool Size", PoolSize())
	log.Infof("%-18s: %d", "Gas Limit", GasLimit())
	log.Infof("%-18s: %d", "Workers", Workers())
	log.Infof("%-18s: %t", "HD Accounts", Mnemonic() != "")
	log.Infof("%-18s: %s", "HTTP Listen", HTTPListen())
}

func read() configData {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

func Home() string {
	mu.RLock()
	defer mu.RUnlock()
	return home
}

func LedgerURL() string {
	return read().Ledger.URL
}

// LedgerWSURL is the endpoint used for event subscriptions; it falls back to LedgerURL.
func LedgerWSURL() string {
	cfg := read()
	if cfg.Ledger.WSURL == "" {
		return cfg.Ledger.URL
	}
	return cfg.Ledger.WSURL
}

func FromBlock() uint64 {
	return read().Ledger.FromBlock
}

func CallTimeout() time.Duration {
	d, _ := time.ParseDuration(read().Ledger.CallTimeout)
	return d
}

func ReceiptTimeout() time.Duration {
	d, _ := time.ParseDuration(read().Ledger.ReceiptTimeout)
	return d
}

func AppAddress() common.Address {
	return common.HexToAddress(read().Contracts.AppAddress)
}

func DataAddress() common.Address {
	return common.HexToAddress(read().Contracts.DataAddress)
}

func AppArtifact() string {
	return read().Contracts.AppArtifact
}

func DataArtifact() string {
	return read().Contracts.DataArtifact
}

func AuthoriseCaller() bool {
	return read().Contracts.AuthoriseCaller
}

func PoolSize() int {
	return read().Oracles.PoolSize
}

func GasLimit() uint64 {
	return read().Oracles.GasLimit
}

func RegistrationConcurrency() int {
	return read().Oracles.RegistrationConcurrency
}

func Workers() int {
	return read().Oracles.Workers
}

func QueueSize() int {
	return read().Oracles.QueueSize
}

func Mnemonic() string {
	return read().Accounts.Mnemonic
}

func AccountCount() int {
	return read().Accounts.Count
}

func HTTPEnabled() bool {
	return read().HTTP.Enabled
}

func HTTPListen() string {
	return read().HTTP.Listen
}

func LogLevel() string {
	return read().Log.Level
}

func LogDir() string {
	return read().Log.Dir
}

// SetForTesting installs the defaults overridden by the given values without touching disk.
func SetForTesting(ledgerURL, appAddress, dataAddress string, poolSize int, gasLimit uint64) {
	cfg := defaultConfig()
	cfg.Ledger.URL = ledgerURL
	cfg.Ledger.WSURL = ""
	cfg.Contracts.AppAddress = appAddress
	cfg.Contracts.DataAddress = dataAddress
	cfg.Oracles.PoolSize = poolSize
	cfg.Oracles.GasLimit = gasLimit
	cfg.HTTP.Enabled = false

	mu.Lock()
	globalConfig = cfg
	home = os.TempDir()
	mu.Unlock()
}
