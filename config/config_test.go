package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/okx/disperser/disperse"
)

const (
	testKey      = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAccount  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testContract = "0xD152f549545093347A162Dce210e7293f1452150"
)

func requiredSettings(v *viper.Viper) {
	v.Set(FlagRPCURL, "http://127.0.0.1:8545")
	v.Set(FlagPrivateKey, "0x"+testKey)
	v.Set(FlagDisperseContract, testContract)
	v.Set(FlagAmountPerAddress, "0.00000065")
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	requiredSettings(v)

	cfg, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	require.Equal(t, common.HexToAddress(testAccount), crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey))
	require.Equal(t, common.HexToAddress(testContract), cfg.Contract)
	require.Equal(t, uint64(650_000_000_000), cfg.AmountPerAddress.Uint64())
	require.Equal(t, 900, cfg.BatchSize)
	require.Equal(t, 50*time.Second, cfg.SuccessInterval)
	require.Equal(t, 60*time.Second, cfg.FailureBackoff)
	require.Equal(t, 1, cfg.MaxBatchAttempts)
	require.Equal(t, "add.txt", cfg.RecipientsFile)
	require.False(t, cfg.StrictAddresses)
	require.Equal(t, "transactions.jsonl", cfg.SuccessLog)
	require.Equal(t, "errors.jsonl", cfg.ErrorLog)
	require.Empty(t, cfg.SummaryFile)
	require.Zero(t, cfg.ConfirmTimeout)
	require.Zero(t, cfg.RPCRateLimit)
	require.Equal(t, uint(3), cfg.RPCRetries)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_StringValues(t *testing.T) {
	v := viper.New()
	requiredSettings(v)
	v.Set(FlagBatchSize, "500")
	v.Set(FlagSuccessInterval, "10s")
	v.Set(FlagFailureBackoff, "30")
	v.Set(FlagMaxBatchAttempts, "3")
	v.Set(FlagStrictAddresses, "true")
	v.Set(FlagRPCRateLimit, "2.5")
	v.Set(FlagConfirmTimeout, "5m")

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 500, cfg.BatchSize)
	require.Equal(t, 10*time.Second, cfg.SuccessInterval)
	require.Equal(t, 30*time.Second, cfg.FailureBackoff)
	require.Equal(t, 3, cfg.MaxBatchAttempts)
	require.True(t, cfg.StrictAddresses)
	require.Equal(t, 2.5, cfg.RPCRateLimit)
	require.Equal(t, 5*time.Minute, cfg.ConfirmTimeout)

	dc := cfg.DisperseConfig()
	require.Equal(t, 500, dc.BatchSize)
	require.Equal(t, 3, dc.MaxBatchAttempts)
	require.Equal(t, cfg.AmountPerAddress, dc.AmountPerAddress)

	cc := cfg.ChainConfig()
	require.Equal(t, cfg.Contract, cc.Contract)
	require.Equal(t, 2.5, cc.RateLimit)
	require.Equal(t, 5*time.Minute, cc.ConfirmTimeout)
}

func TestLoad_MissingRequired(t *testing.T) {
	_, err := Load(viper.New())
	require.ErrorIs(t, err, disperse.ErrConfig)
	for _, env := range []string{"RPC_URL", "PRIVATE_KEY", "DISPERSE_CONTRACT", "AMOUNT_PER_ADDRESS"} {
		require.Contains(t, err.Error(), env)
	}
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"batch size not a number", FlagBatchSize, "lots"},
		{"batch size zero", FlagBatchSize, 0},
		{"negative batch size", FlagBatchSize, -5},
		{"bad duration", FlagSuccessInterval, "soon"},
		{"backoff shorter than interval", FlagFailureBackoff, "10s"},
		{"zero attempts", FlagMaxBatchAttempts, 0},
		{"bad private key", FlagPrivateKey, "0xnothex"},
		{"bad contract", FlagDisperseContract, "0x1234"},
		{"bad amount", FlagAmountPerAddress, "0.1.2"},
		{"zero amount", FlagAmountPerAddress, "0"},
		{"too many decimals", FlagAmountPerAddress, "0.0000000000000000001"},
		{"negative rate limit", FlagRPCRateLimit, -1},
		{"zero retries", FlagRPCRetries, 0},
		{"unknown log level", FlagLogLevel, "loud"},
		{"bad bool", FlagStrictAddresses, "maybe"},
		{"hex batch size", FlagBatchSize, "0x384"},
		{"hex retries", FlagRPCRetries, "0x3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			requiredSettings(v)
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			require.ErrorIs(t, err, disperse.ErrConfig)
		})
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RPC_URL", "http://node:8545")
	t.Setenv("PRIVATE_KEY", testKey)
	t.Setenv("DISPERSE_CONTRACT", testContract)
	t.Setenv("AMOUNT_PER_ADDRESS", "1.5")
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("SUCCESS_INTERVAL", "5s")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	require.Equal(t, "http://node:8545", cfg.RPCURL)
	require.Equal(t, "1500000000000000000", cfg.AmountPerAddress.Dec())
	require.Equal(t, 250, cfg.BatchSize)
	require.Equal(t, 5*time.Second, cfg.SuccessInterval)
}

func TestLoad_DecimalIntegers(t *testing.T) {
	v := viper.New()
	requiredSettings(v)
	v.Set(FlagBatchSize, "0100")
	v.Set(FlagRPCRetries, "010")

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, uint(10), cfg.RPCRetries)
}

func TestLoad_BadLogLevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	v := NewViper()
	requiredSettings(v)

	_, err := Load(v)
	require.ErrorIs(t, err, disperse.ErrConfig)
	require.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"trace", log.LevelTrace},
		{"debug", log.LevelDebug},
		{"info", log.LevelInfo},
		{"WARN", log.LevelWarn},
		{"error", log.LevelError},
		{" crit ", log.LevelCrit},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.name)
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.want, got, tt.name)
	}

	_, err := ParseLogLevel("loud")
	require.Error(t, err)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("BATCH_SIZE", "250")

	cmd := &cobra.Command{}
	AddFlags(cmd)
	v := NewViper()
	require.NoError(t, v.BindPFlags(cmd.PersistentFlags()))
	requiredSettings(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 250, cfg.BatchSize)

	require.NoError(t, cmd.PersistentFlags().Set(FlagBatchSize, "100"))
	require.NoError(t, cmd.PersistentFlags().Set(FlagFailureBackoff, "2m"))
	cfg, err = Load(v)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.BatchSize)
	require.Equal(t, 2*time.Minute, cfg.FailureBackoff)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "DISPERSER_CONFIG_TEST_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0600))

	require.NoError(t, LoadEnvFile(path, true))
	require.Equal(t, "from-file", os.Getenv(key))

	missing := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, LoadEnvFile(missing, false))
	require.ErrorIs(t, LoadEnvFile(missing, true), disperse.ErrConfig)
	require.NoError(t, LoadEnvFile("", true))
}
