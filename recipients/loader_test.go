package recipients

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	addrB = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
	addrC = "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"
)

var discard = log.NewLogger(log.DiscardHandler())

func TestParse_FiltersBlankAndMalformed(t *testing.T) {
	input := strings.Join([]string{
		addrA,
		"",
		"   ",
		"0x1234",
		addrB,
		"not-an-address",
		"  " + addrC + "  ",
		"",
	}, "\n")

	got, err := Parse(strings.NewReader(input), false, discard)
	require.NoError(t, err)
	require.Equal(t, []common.Address{
		common.HexToAddress(addrA),
		common.HexToAddress(addrB),
		common.HexToAddress(addrC),
	}, got)
}

func TestParse_LastLineWithoutNewline(t *testing.T) {
	got, err := Parse(strings.NewReader(addrA+"\n"+addrB), false, discard)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestParse_SkipsOversizedLine(t *testing.T) {
	input := addrA + "\n" + strings.Repeat("z", 70_000) + "\n" + addrB + "\n"

	got, err := Parse(strings.NewReader(input), false, discard)
	require.NoError(t, err)
	require.Equal(t, []common.Address{common.HexToAddress(addrA), common.HexToAddress(addrB)}, got)
}

func TestParse_DropsDuplicates(t *testing.T) {
	input := strings.Join([]string{addrA, addrB, strings.ToLower(addrA), addrC, addrB}, "\n")

	got, err := Parse(strings.NewReader(input), false, discard)
	require.NoError(t, err)
	require.Equal(t, []common.Address{
		common.HexToAddress(addrA),
		common.HexToAddress(addrB),
		common.HexToAddress(addrC),
	}, got)
}

func TestParse_Strict(t *testing.T) {
	input := strings.Join([]string{addrA, "", "0xzz", addrB}, "\n")

	_, err := Parse(strings.NewReader(input), true, discard)
	require.ErrorIs(t, err, ErrInvalidAddress)
	require.Contains(t, err.Error(), "line 3")
}

func TestParse_Empty(t *testing.T) {
	got, err := Parse(strings.NewReader("\n\n"), false, discard)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"checksummed", addrA, true},
		{"lower case", strings.ToLower(addrA), true},
		{"upper case digits", "0x" + strings.ToUpper(addrA[2:]), true},
		{"no prefix", addrA[2:], true},
		{"bad checksum", "0x3c44CdDdB6a900fa2b585dd299e03d12FA4293BC", false},
		{"too short", "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293", false},
		{"non hex", "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BG", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if !tt.ok {
				require.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			require.Equal(t, common.HexToAddress(addrA), addr)
		})
	}
}

func TestLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "add.txt")
	require.NoError(t, os.WriteFile(path, []byte(addrA+"\n\nbogus\n"+addrB+"\n"), 0644))

	got, err := NewLoader(path, false, discard).Recipients()
	require.NoError(t, err)
	require.Equal(t, []common.Address{common.HexToAddress(addrA), common.HexToAddress(addrB)}, got)

	_, err = NewLoader(path, true, discard).Recipients()
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.txt"), false, discard).Recipients()
	require.Error(t, err)
}
