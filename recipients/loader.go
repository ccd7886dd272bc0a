// Package recipients reads the newline separated recipient file.
package recipients

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/disperser/disperse"
)

var (
	_ disperse.RecipientSource = (*Loader)(nil)

	ErrInvalidAddress = errors.New("invalid address")
)

// Loader reads recipients from a file every time Recipients is called.
type Loader struct {
	path   string
	strict bool
	log    log.Logger
}

// NewLoader returns a Loader for path. In strict mode the first malformed
// line fails the load; otherwise malformed lines are skipped with a warning.
func NewLoader(path string, strict bool, logger log.Logger) *Loader {
	return &Loader{path: path, strict: strict, log: logger}
}

func (l *Loader) Recipients() ([]common.Address, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipient file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			l.log.Warn("Failed to close recipient file", "path", l.path, "err", err)
		}
	}()

	l.log.Info("Loading recipients", "path", l.path, "strict", l.strict)
	return Parse(f, l.strict, l.log)
}

// Parse reads one address per line, keeping file order. Blank lines are
// ignored and repeated addresses keep their first occurrence.
func Parse(r io.Reader, strict bool, logger log.Logger) ([]common.Address, error) {
	var (
		out        []common.Address
		seen       = make(map[common.Address]struct{})
		invalid    int
		duplicates int
		lineNo     int
	)
	rd := bufio.NewReader(r)
	for {
		raw, readErr := rd.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("failed to read recipients: %w", readErr)
		}
		if readErr == io.EOF && raw == "" {
			break
		}
		lineNo++
		line := strings.TrimSpace(raw)
		if line == "" {
			if readErr == io.EOF {
				break
			}
			continue
		}
		addr, err := ParseAddress(line)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			invalid++
			logger.Warn("Skipping invalid address", "line", lineNo, "value", abbreviate(line))
		} else if _, ok := seen[addr]; ok {
			duplicates++
			logger.Warn("Skipping duplicate address", "line", lineNo, "address", addr)
		} else {
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
		if readErr == io.EOF {
			break
		}
	}
	logger.Info("Parsed recipients", "valid", len(out), "invalid", invalid, "duplicates", duplicates)
	return out, nil
}

func abbreviate(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// ParseAddress accepts a 20 byte hex address with or without 0x. Mixed case
// input must carry a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := common.HexToAddress(s)
	digits := s
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	mixed := digits != strings.ToLower(digits) && digits != strings.ToUpper(digits)
	if mixed && digits != addr.Hex()[2:] {
		return common.Address{}, fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, s)
	}
	return addr, nil
}
