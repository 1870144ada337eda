package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the daemon settings decoded from the TOML file.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`

	ModuleAddress string `toml:"ModuleAddress"`
	FeeRecipient  string `toml:"FeeRecipient"`

	Signers         []string `toml:"Signers"`
	SignerThreshold uint32   `toml:"SignerThreshold"`

	OracleFeeders       []string `toml:"OracleFeeders"`
	OracleMaxAgeSeconds int64    `toml:"OracleMaxAgeSeconds"`

	LendFeeRate     int64  `toml:"LendFeeRate"`
	BorrowFeeRate   int64  `toml:"BorrowFeeRate"`
	MinContribution string `toml:"MinContribution"`

	SwapDeadlineSeconds int64  `toml:"SwapDeadlineSeconds"`
	SwapFeeBasisPoints  int64  `toml:"SwapFeeBasisPoints"`
	SwapVenueAddress    string `toml:"SwapVenueAddress"`
}

// Load loads the configuration from the given path. A missing file yields a
// default configuration persisted back to the path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./pledge-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.Signers == nil {
		cfg.Signers = []string{}
	}
	if cfg.OracleFeeders == nil {
		cfg.OracleFeeders = []string{}
	}
	if cfg.SignerThreshold == 0 {
		cfg.SignerThreshold = 1
	}
	if cfg.OracleMaxAgeSeconds <= 0 {
		cfg.OracleMaxAgeSeconds = 300
	}
	if cfg.SwapDeadlineSeconds <= 0 {
		cfg.SwapDeadlineSeconds = 300
	}
	if strings.TrimSpace(cfg.MinContribution) == "" {
		cfg.MinContribution = "0"
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if _, err := ParseAddress(c.ModuleAddress); err != nil {
		return fmt.Errorf("config: ModuleAddress: %w", err)
	}
	if strings.TrimSpace(c.FeeRecipient) != "" {
		if _, err := ParseAddress(c.FeeRecipient); err != nil {
			return fmt.Errorf("config: FeeRecipient: %w", err)
		}
	}
	if len(c.Signers) == 0 {
		return fmt.Errorf("config: at least one signer required")
	}
	if int(c.SignerThreshold) > len(c.Signers) {
		return fmt.Errorf("config: SignerThreshold %d exceeds signer count %d", c.SignerThreshold, len(c.Signers))
	}
	if _, err := ParseAddresses(c.Signers); err != nil {
		return fmt.Errorf("config: Signers: %w", err)
	}
	if _, err := ParseAddresses(c.OracleFeeders); err != nil {
		return fmt.Errorf("config: OracleFeeders: %w", err)
	}
	if c.LendFeeRate < 0 || c.BorrowFeeRate < 0 {
		return fmt.Errorf("config: fee rates must not be negative")
	}
	if strings.TrimSpace(c.SwapVenueAddress) != "" {
		if _, err := ParseAddress(c.SwapVenueAddress); err != nil {
			return fmt.Errorf("config: SwapVenueAddress: %w", err)
		}
	}
	if c.SwapFeeBasisPoints < 0 || c.SwapFeeBasisPoints >= 10000 {
		return fmt.Errorf("config: SwapFeeBasisPoints %d out of range", c.SwapFeeBasisPoints)
	}
	if _, err := c.MinContributionAmount(); err != nil {
		return err
	}
	return nil
}

// MinContributionAmount parses the configured per-deposit floor.
func (c *Config) MinContributionAmount() (*big.Int, error) {
	raw := strings.TrimSpace(c.MinContribution)
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: MinContribution %q is not a non-negative integer", c.MinContribution)
	}
	return amount, nil
}

// ParseAddress decodes a 20-byte hex address, with or without 0x prefix.
func ParseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address %q", raw)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address %q must be %d bytes", raw, len(addr))
	}
	copy(addr[:], decoded)
	return addr, nil
}

// ParseAddresses decodes a list of hex addresses.
func ParseAddresses(raw []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		addr, err := ParseAddress(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// createDefault creates and saves a default configuration file. The defaults
// are only useful for local development; the module address and signer set
// must be filled in before the daemon will start.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:       ":8080",
		DataDir:             "./pledge-data",
		Environment:         "local",
		Signers:             []string{},
		OracleFeeders:       []string{},
		SignerThreshold:     1,
		OracleMaxAgeSeconds: 300,
		SwapDeadlineSeconds: 300,
		MinContribution:     "0",
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
