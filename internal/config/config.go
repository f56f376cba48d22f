package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"chaintetris/internal/chain"
	"chaintetris/internal/game"
)

// EnvPrefix prefixes every environment override, e.g. TETRIS_CHAIN_CONTRACT.
const EnvPrefix = "TETRIS"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Listen    string    `mapstructure:"listen"`
	BaseURL   string    `mapstructure:"base_url"`
	Log       Log       `mapstructure:"log"`
	Chain     Chain     `mapstructure:"chain"`
	Game      Game      `mapstructure:"game"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
}

type Log struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

type Chain struct {
	RPCURL       string        `mapstructure:"rpc_url"`
	Contract     string        `mapstructure:"contract"`
	ABIPath      string        `mapstructure:"abi_path"`
	PrivateKey   string        `mapstructure:"private_key"`
	Keystore     string        `mapstructure:"keystore"`
	Passphrase   string        `mapstructure:"passphrase"`
	Account      string        `mapstructure:"account"`
	ChainID      int64         `mapstructure:"chain_id"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	TxTimeout    time.Duration `mapstructure:"tx_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type Game struct {
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	AutoTick       bool          `mapstructure:"auto_tick"`
	RoomListTTL    time.Duration `mapstructure:"room_list_ttl"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxRooms       int           `mapstructure:"max_rooms"`
}

type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

var defaults = map[string]any{
	"listen":               ":8080",
	"base_url":             "",
	"log.format":           "text",
	"log.level":            "info",
	"chain.rpc_url":        "wss://bsc-testnet.publicnode.com",
	"chain.contract":       "",
	"chain.abi_path":       "",
	"chain.private_key":    "",
	"chain.keystore":       "",
	"chain.passphrase":     "",
	"chain.account":        "",
	"chain.chain_id":       0,
	"chain.call_timeout":   "15s",
	"chain.tx_timeout":     "90s",
	"chain.poll_interval":  "3s",
	"game.resync_interval": "30s",
	"game.tick_interval":   "1s",
	"game.auto_tick":       false,
	"game.room_list_ttl":   "5s",
	"game.idle_timeout":    "2m",
	"game.max_rooms":       256,
	"rate_limit.rps":       5.0,
	"rate_limit.burst":     10,
}

// Load reads defaults, then the optional YAML file at path, then TETRIS_* env vars.
// A set PORT env var overrides the listen address.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Listen = ":" + port
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalid)
	}
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("%w: chain.rpc_url is empty", ErrInvalid)
	}
	if !common.IsHexAddress(c.Chain.Contract) {
		return fmt.Errorf("%w: chain.contract %q is not an address", ErrInvalid, c.Chain.Contract)
	}
	if c.Chain.Account != "" && !common.IsHexAddress(c.Chain.Account) {
		return fmt.Errorf("%w: chain.account %q is not an address", ErrInvalid, c.Chain.Account)
	}
	if c.Chain.CallTimeout <= 0 || c.Chain.TxTimeout <= 0 || c.Chain.PollInterval <= 0 {
		return fmt.Errorf("%w: chain timeouts must be positive", ErrInvalid)
	}
	if c.Game.AutoTick && c.Game.TickInterval <= 0 {
		return fmt.Errorf("%w: game.tick_interval must be positive when auto_tick is on", ErrInvalid)
	}
	if c.Game.IdleTimeout < 0 || c.Game.MaxRooms < 0 {
		return fmt.Errorf("%w: game.idle_timeout and game.max_rooms must not be negative", ErrInvalid)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalid)
	}
	return nil
}

// ChainConfig converts the chain section for chain.Dial.
func (c Config) ChainConfig() chain.Config {
	return chain.Config{
		RPCURL:          c.Chain.RPCURL,
		ContractAddress: c.Chain.Contract,
		ABIPath:         c.Chain.ABIPath,
		PrivateKey:      c.Chain.PrivateKey,
		KeystorePath:    c.Chain.Keystore,
		Passphrase:      c.Chain.Passphrase,
		Account:         c.Chain.Account,
		ChainID:         c.Chain.ChainID,
		CallTimeout:     c.Chain.CallTimeout,
		TxTimeout:       c.Chain.TxTimeout,
		PollInterval:    c.Chain.PollInterval,
	}
}

// GameOptions converts the game section for game.NewStore.
func (c Config) GameOptions() game.Options {
	return game.Options{
		ResyncInterval: c.Game.ResyncInterval,
		TickInterval:   c.Game.TickInterval,
		AutoTick:       c.Game.AutoTick,
		RoomListTTL:    c.Game.RoomListTTL,
		IdleTimeout:    c.Game.IdleTimeout,
		MaxRooms:       c.Game.MaxRooms,
	}
}
