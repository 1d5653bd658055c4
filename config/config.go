// Package config loads the engine's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/cloudx-io/boxauction/core"
	"github.com/cloudx-io/boxauction/logging"
)

// EnvPrefix is prepended to environment overrides, e.g. BOXAUCTION_STORE_PATH.
const EnvPrefix = "BOXAUCTION"

// Price policies.
const (
	PolicyNone       = "none"
	PolicyDescending = "descending"
)

// Config is the engine's full configuration.
type Config struct {
	Engine   EngineConf    `toml:"engine" mapstructure:"engine" json:"engine"`
	Auctions []AuctionConf `toml:"auctions" mapstructure:"auctions" json:"auctions" validate:"dive"`
	Pricing  PricingConf   `toml:"pricing" mapstructure:"pricing" json:"pricing"`
	Catalog  CatalogConf   `toml:"catalog" mapstructure:"catalog" json:"catalog"`
	Store    StoreConf     `toml:"store" mapstructure:"store" json:"store"`
	Server   ServerConf    `toml:"server" mapstructure:"server" json:"server"`
	HTTP     HTTPConf      `toml:"http" mapstructure:"http" json:"http"`
	Log      logging.Conf  `toml:"log" mapstructure:"log" json:"log"`
	Genesis  GenesisConf   `toml:"genesis" mapstructure:"genesis" json:"genesis"`
}

// EngineConf names the engine's accounts. Account is the settlement spender
// and recipient; HoldingAccount defaults to Account.
type EngineConf struct {
	Account        string `toml:"account" mapstructure:"account" json:"account" validate:"required"`
	HoldingAccount string `toml:"holding_account" mapstructure:"holding_account" json:"holding_account"`
}

// AuctionConf is one slot seed. Slots are indexed in declaration order.
// AuctionStart is an RFC 3339 string; amounts are decimal strings.
type AuctionConf struct {
	BoxTokenID      uint64        `toml:"box_token_id" mapstructure:"box_token_id" json:"box_token_id"`
	Quantity        uint64        `toml:"quantity" mapstructure:"quantity" json:"quantity" validate:"gt=0"`
	AuctionStart    string        `toml:"auction_start" mapstructure:"auction_start" json:"auction_start" validate:"omitempty,rfc3339"`
	AuctionDuration time.Duration `toml:"auction_duration" mapstructure:"auction_duration" json:"auction_duration" validate:"gte=0"`
	InitialPrice    string        `toml:"initial_price" mapstructure:"initial_price" json:"initial_price" validate:"omitempty,decimal"`
}

// PricingConf selects the price policy.
type PricingConf struct {
	Policy string `toml:"policy" mapstructure:"policy" json:"policy" validate:"oneof=none descending"`
	Floor  string `toml:"floor" mapstructure:"floor" json:"floor" validate:"omitempty,decimal"`
}

// CatalogConf locates the box catalog. An empty Path runs without a catalog.
type CatalogConf struct {
	Path       string `toml:"path" mapstructure:"path" json:"path"`                      // YAML source or CBOR artifact
	SealedPath string `toml:"sealed_path" mapstructure:"sealed_path" json:"sealed_path"` // COSE-sealed artifact
	VerifyKey  string `toml:"verify_key" mapstructure:"verify_key" json:"verify_key"`    // PEM public key for SealedPath
	SigningKey string `toml:"signing_key" mapstructure:"signing_key" json:"signing_key"` // PEM private key to seal the catalog for distribution
}

// StoreConf configures the Pebble event store.
type StoreConf struct {
	Path      string `toml:"path" mapstructure:"path" json:"path" validate:"required"`
	CacheSize int64  `toml:"cache_size" mapstructure:"cache_size" json:"cache_size" validate:"gte=0"`
}

// ServerConf configures the socket transport.
type ServerConf struct {
	Enabled     bool          `toml:"enabled" mapstructure:"enabled" json:"enabled"`
	Network     string        `toml:"network" mapstructure:"network" json:"network" validate:"oneof=tcp vsock"`
	Address     string        `toml:"address" mapstructure:"address" json:"address" validate:"required_if=Network tcp"`
	Port        uint32        `toml:"port" mapstructure:"port" json:"port" validate:"required_if=Network vsock"`
	MaxWorkers  int           `toml:"max_workers" mapstructure:"max_workers" json:"max_workers" validate:"gt=0"`
	ReadTimeout time.Duration `toml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" validate:"gt=0"`
}

// HTTPConf configures the HTTP API.
type HTTPConf struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled" json:"enabled"`
	Address string `toml:"address" mapstructure:"address" json:"address" validate:"required_if=Enabled true"`
	Mode    string `toml:"mode" mapstructure:"mode" json:"mode" validate:"oneof=debug release test"`

	// AllowOrigins lists CORS origins; empty disables CORS handling.
	AllowOrigins []string `toml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`

	// EnableApprovals mounts POST /v1/settlement/approvals, which lets any
	// caller set the engine's allowance over any owner. Development only.
	EnableApprovals bool `toml:"enable_approvals" mapstructure:"enable_approvals" json:"enable_approvals"`
}

// GenesisConf seeds the in-memory ledgers of a standalone deployment.
type GenesisConf struct {
	Balances  []BalanceConf  `toml:"balances" mapstructure:"balances" json:"balances" validate:"dive"`
	Approvals []ApprovalConf `toml:"approvals" mapstructure:"approvals" json:"approvals" validate:"dive"`
}

// BalanceConf mints settlement tokens to an account.
type BalanceConf struct {
	Account string `toml:"account" mapstructure:"account" json:"account" validate:"required"`
	Amount  string `toml:"amount" mapstructure:"amount" json:"amount" validate:"required,decimal"`
}

// ApprovalConf grants the engine an allowance over an owner's tokens.
type ApprovalConf struct {
	Owner  string `toml:"owner" mapstructure:"owner" json:"owner" validate:"required"`
	Amount string `toml:"amount" mapstructure:"amount" json:"amount" validate:"required,decimal"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.account", "")
	v.SetDefault("engine.holding_account", "")
	v.SetDefault("pricing.policy", PolicyNone)
	v.SetDefault("pricing.floor", "")
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.sealed_path", "")
	v.SetDefault("catalog.verify_key", "")
	v.SetDefault("catalog.signing_key", "")
	v.SetDefault("store.path", "data/events")
	v.SetDefault("store.cache_size", 32<<20)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.network", "tcp")
	v.SetDefault("server.address", "127.0.0.1:5000")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.max_workers", 64)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.address", "127.0.0.1:8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.enable_approvals", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads, decodes, and validates the configuration file at path.
// Environment variables prefixed with EnvPrefix override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})
	return validate
}

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for i, a := range c.Auctions {
		if a.InitialPrice != "" && decimal.RequireFromString(a.InitialPrice).IsNegative() {
			return fmt.Errorf("invalid config: auctions[%d]: negative initial_price", i)
		}
	}
	if c.Pricing.Policy == PolicyDescending && c.Pricing.Floor == "" {
		return errors.New("invalid config: pricing.floor is required for the descending policy")
	}
	if c.Catalog.Path != "" && c.Catalog.SealedPath != "" {
		return errors.New("invalid config: catalog.path and catalog.sealed_path are mutually exclusive")
	}
	if c.Catalog.SealedPath != "" && c.Catalog.VerifyKey == "" {
		return errors.New("invalid config: catalog.verify_key is required with catalog.sealed_path")
	}
	return nil
}

// SlotConfigs converts the auction seeds to core slot configs, in declaration order.
func (c *Config) SlotConfigs() ([]core.SlotConfig, error) {
	slots := make([]core.SlotConfig, len(c.Auctions))
	for i, a := range c.Auctions {
		slot := core.SlotConfig{
			BoxTokenID:      core.TokenID(a.BoxTokenID),
			Quantity:        a.Quantity,
			AuctionDuration: a.AuctionDuration,
			InitialPrice:    decimal.Zero,
		}
		if a.AuctionStart != "" {
			start, err := time.Parse(time.RFC3339, a.AuctionStart)
			if err != nil {
				return nil, fmt.Errorf("auctions[%d].auction_start: %w", i, err)
			}
			slot.AuctionStart = start
		}
		if a.InitialPrice != "" {
			price, err := decimal.NewFromString(a.InitialPrice)
			if err != nil {
				return nil, fmt.Errorf("auctions[%d].initial_price: %w", i, err)
			}
			slot.InitialPrice = price
		}
		slots[i] = slot
	}
	return slots, nil
}

// PriceFunc returns the configured price policy.
func (c *Config) PriceFunc() (core.PriceFunc, error) {
	switch c.Pricing.Policy {
	case "", PolicyNone:
		return core.NoFloor, nil
	case PolicyDescending:
		floor, err := decimal.NewFromString(c.Pricing.Floor)
		if err != nil {
			return nil, fmt.Errorf("pricing.floor: %w", err)
		}
		return core.DescendingPrice(floor), nil
	default:
		return nil, fmt.Errorf("unknown price policy %q", c.Pricing.Policy)
	}
}

// HoldingAccount returns the inventory account box tokens are sold from.
func (c *Config) HoldingAccount() core.Address {
	if c.Engine.HoldingAccount != "" {
		return core.Address(c.Engine.HoldingAccount)
	}
	return core.Address(c.Engine.Account)
}
