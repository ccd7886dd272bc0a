// Package config assembles disperser settings from flags, the environment
// and an optional .env file.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/okx/disperser/chain"
	"github.com/okx/disperser/disperse"
)

const (
	// FlagRPCURL is the JSON-RPC endpoint of the target chain
	FlagRPCURL = "rpc-url"
	// FlagPrivateKey is the hex private key funding every batch
	FlagPrivateKey = "private-key" // #nosec G101
	// FlagDisperseContract is the address of the disperser contract
	FlagDisperseContract = "disperse-contract"
	// FlagAmountPerAddress is the ether amount sent to each recipient
	FlagAmountPerAddress = "amount-per-address"
	// FlagBatchSize is the maximum number of recipients per transaction
	FlagBatchSize = "batch-size"
	// FlagSuccessInterval is the pause after a confirmed batch
	FlagSuccessInterval = "success-interval"
	// FlagFailureBackoff is the pause after a failed batch
	FlagFailureBackoff = "failure-backoff"
	// FlagMaxBatchAttempts bounds attempts per batch
	FlagMaxBatchAttempts = "max-batch-attempts"
	// FlagRecipientsFile is the newline separated address list
	FlagRecipientsFile = "recipients-file"
	// FlagStrictAddresses fails the load on the first malformed address
	FlagStrictAddresses = "strict-addresses"
	// FlagSuccessLog is the JSON Lines file of confirmed batches
	FlagSuccessLog = "success-log"
	// FlagErrorLog is the JSON Lines file of failed batch attempts
	FlagErrorLog = "error-log"
	// FlagSummaryFile is the optional YAML run summary
	FlagSummaryFile = "summary-file"
	// FlagConfirmTimeout bounds the wait for a receipt
	FlagConfirmTimeout = "confirm-timeout"
	// FlagRPCRateLimit caps RPC requests per second
	FlagRPCRateLimit = "rpc-rate-limit"
	// FlagRPCRetries is the number of attempts for read-only RPC calls
	FlagRPCRetries = "rpc-retries"
	// FlagLogLevel is the minimum log level
	FlagLogLevel = "log-level"
	// FlagEnvFile is the dotenv file read before the environment
	FlagEnvFile = "env-file"
)

const (
	DefaultRecipientsFile = "add.txt"
	DefaultSuccessLog     = "transactions.jsonl"
	DefaultErrorLog       = "errors.jsonl"
	DefaultEnvFile        = ".env"
	DefaultRPCRetries     = 3
	DefaultLogLevel       = "info"
)

// Config is the validated configuration of one invocation.
type Config struct {
	RPCURL           string
	PrivateKey       *ecdsa.PrivateKey
	Contract         common.Address
	AmountPerAddress *uint256.Int
	BatchSize        int
	SuccessInterval  time.Duration
	FailureBackoff   time.Duration
	MaxBatchAttempts int
	RecipientsFile   string
	StrictAddresses  bool
	SuccessLog       string
	ErrorLog         string
	SummaryFile      string
	ConfirmTimeout   time.Duration
	RPCRateLimit     float64
	RPCRetries       uint
	LogLevel         string
}

// AddFlags registers every setting on cmd as a persistent flag.
func AddFlags(cmd *cobra.Command) {
	def := disperse.DefaultConfig()
	flags := cmd.PersistentFlags()

	flags.String(FlagRPCURL, "", "JSON-RPC endpoint (http, https, ws or wss)")
	flags.String(FlagPrivateKey, "", "hex private key of the funding wallet")
	flags.String(FlagDisperseContract, "", "disperser contract address")
	flags.String(FlagAmountPerAddress, "", "amount sent to each recipient, in ether")
	flags.Int(FlagBatchSize, def.BatchSize, "recipients per transaction")
	flags.Duration(FlagSuccessInterval, def.SuccessInterval, "pause after a confirmed batch")
	flags.Duration(FlagFailureBackoff, def.FailureBackoff, "pause after a failed batch")
	flags.Int(FlagMaxBatchAttempts, def.MaxBatchAttempts, "attempts per batch (1 skips a failed batch)")
	flags.String(FlagRecipientsFile, DefaultRecipientsFile, "newline separated recipient addresses")
	flags.Bool(FlagStrictAddresses, false, "fail on the first malformed address instead of skipping it")
	flags.String(FlagSuccessLog, DefaultSuccessLog, "JSON Lines file for confirmed batches")
	flags.String(FlagErrorLog, DefaultErrorLog, "JSON Lines file for failed batches")
	flags.String(FlagSummaryFile, "", "YAML run summary (disabled when empty)")
	flags.Duration(FlagConfirmTimeout, 0, "maximum wait for a receipt (0 waits indefinitely)")
	flags.Float64(FlagRPCRateLimit, 0, "RPC requests per second (0 for no limit)")
	flags.Uint(FlagRPCRetries, DefaultRPCRetries, "attempts for read-only RPC calls")
	flags.String(FlagLogLevel, DefaultLogLevel, "log level: trace, debug, info, warn, error, crit")
	flags.String(FlagEnvFile, DefaultEnvFile, "dotenv file with settings")
}

// NewViper returns a viper instance that resolves rpc-url from RPC_URL and
// so on.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadEnvFile exports the variables in path that are not already set. A
// missing file is only an error when required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!required && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("%w: env file %s: %v", disperse.ErrConfig, path, err)
}

// Load reads and validates every setting from v.
func Load(v *viper.Viper) (*Config, error) {
	p := parser{v: v}
	cfg := &Config{
		RPCURL:           p.getRequired(FlagRPCURL),
		BatchSize:        p.getInt(FlagBatchSize, disperse.DefaultBatchSize),
		SuccessInterval:  p.getDuration(FlagSuccessInterval, disperse.DefaultSuccessInterval),
		FailureBackoff:   p.getDuration(FlagFailureBackoff, disperse.DefaultFailureBackoff),
		MaxBatchAttempts: p.getInt(FlagMaxBatchAttempts, 1),
		RecipientsFile:   p.getString(FlagRecipientsFile, DefaultRecipientsFile),
		StrictAddresses:  p.getBool(FlagStrictAddresses),
		SuccessLog:       p.getString(FlagSuccessLog, DefaultSuccessLog),
		ErrorLog:         p.getString(FlagErrorLog, DefaultErrorLog),
		SummaryFile:      p.getString(FlagSummaryFile, ""),
		ConfirmTimeout:   p.getDuration(FlagConfirmTimeout, 0),
		RPCRateLimit:     p.getFloat(FlagRPCRateLimit),
		RPCRetries:       p.getUint(FlagRPCRetries, DefaultRPCRetries),
		LogLevel:         p.getString(FlagLogLevel, DefaultLogLevel),
	}

	if key := p.getRequired(FlagPrivateKey); key != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
		if err != nil {
			p.fail(FlagPrivateKey, errors.New("not a valid hex private key"))
		}
		cfg.PrivateKey = pk
	}
	if contract := p.getRequired(FlagDisperseContract); contract != "" {
		if !common.IsHexAddress(contract) {
			p.fail(FlagDisperseContract, fmt.Errorf("%q is not a hex address", contract))
		}
		cfg.Contract = common.HexToAddress(contract)
	}
	if amount := p.getRequired(FlagAmountPerAddress); amount != "" {
		wei, err := disperse.ParseAmount(amount)
		if err != nil {
			p.errs = append(p.errs, err)
		}
		cfg.AmountPerAddress = wei
	}
	if cfg.RPCRateLimit < 0 {
		p.fail(FlagRPCRateLimit, errors.New("must not be negative"))
	}
	if cfg.ConfirmTimeout < 0 {
		p.fail(FlagConfirmTimeout, errors.New("must not be negative"))
	}
	if cfg.RPCRetries == 0 {
		p.fail(FlagRPCRetries, errors.New("must be at least 1"))
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		p.fail(FlagLogLevel, err)
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.DisperseConfig().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DisperseConfig is the batching and pacing part of c.
func (c *Config) DisperseConfig() disperse.Config {
	return disperse.Config{
		BatchSize:        c.BatchSize,
		AmountPerAddress: c.AmountPerAddress,
		SuccessInterval:  c.SuccessInterval,
		FailureBackoff:   c.FailureBackoff,
		MaxBatchAttempts: c.MaxBatchAttempts,
	}
}

// ChainConfig is the connection part of c.
func (c *Config) ChainConfig() chain.Config {
	return chain.Config{
		RPCURL:         c.RPCURL,
		PrivateKey:     c.PrivateKey,
		Contract:       c.Contract,
		ConfirmTimeout: c.ConfirmTimeout,
		RateLimit:      c.RPCRateLimit,
	}
}

// parser collects every invalid setting instead of stopping at the first.
type parser struct {
	v    *viper.Viper
	errs []error
}

func (p *parser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%w: %s (%s): %v", disperse.ErrConfig, key, envName(key), err))
}

func (p *parser) getRequired(key string) string {
	s := strings.TrimSpace(p.v.GetString(key))
	if s == "" {
		p.fail(key, errors.New("is required"))
	}
	return s
}

func (p *parser) getString(key, def string) string {
	if !p.v.IsSet(key) {
		return def
	}
	return strings.TrimSpace(p.v.GetString(key))
}

// getInt reads key as a base 10 integer. Strings with a 0 or 0x prefix are
// not reinterpreted as octal or hex.
func (p *parser) getInt(key string, def int) int {
	if !p.v.IsSet(key) {
		return def
	}
	var (
		n   int
		err error
	)
	if s, ok := p.v.Get(key).(string); ok {
		n, err = strconv.Atoi(strings.TrimSpace(s))
	} else {
		n, err = cast.ToIntE(p.v.Get(key))
	}
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) getUint(key string, def uint) uint {
	if !p.v.IsSet(key) {
		return def
	}
	if s, ok := p.v.Get(key).(string); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 0)
		if err != nil {
			p.fail(key, err)
		}
		return uint(n)
	}
	n, err := cast.ToUintE(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) getFloat(key string) float64 {
	if !p.v.IsSet(key) {
		return 0
	}
	f, err := cast.ToFloat64E(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *parser) getBool(key string) bool {
	if !p.v.IsSet(key) {
		return false
	}
	b, err := cast.ToBoolE(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return b
}

// getDuration accepts Go durations ("50s", "1m30s"). A bare integer is taken as
// seconds.
func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	if !p.v.IsSet(key) {
		return def
	}
	raw := p.v.Get(key)
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
		raw = s
	}
	d, err := cast.ToDurationE(raw)
	if err != nil {
		p.fail(key, err)
	}
	return d
}

// ParseLogLevel maps a level name to its go-ethereum log level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		return log.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}
