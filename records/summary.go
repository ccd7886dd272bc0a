package records

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/okx/disperser/disperse"
)

// Summary is the YAML form of a run report.
type Summary struct {
	RunID            string `yaml:"run_id"`
	Recipients       int    `yaml:"recipients"`
	Batches          int    `yaml:"batches"`
	SucceededBatches []int  `yaml:"succeeded_batches"`
	FailedBatches    []int  `yaml:"failed_batches"`
	StartedAt        string `yaml:"started_at"`
	FinishedAt       string `yaml:"finished_at"`
	Duration         string `yaml:"duration"`
	RecipientsPaid   int    `yaml:"recipients_paid"`
	GasUsed          uint64 `yaml:"gas_used"`
	EtherSent        string `yaml:"ether_sent"`
}

func NewSummary(r *disperse.Report) Summary {
	return Summary{
		RunID:            r.RunID,
		Recipients:       r.Recipients,
		Batches:          r.Batches,
		SucceededBatches: r.SucceededBatches,
		FailedBatches:    r.FailedBatches,
		StartedAt:        r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:       r.FinishedAt.UTC().Format(time.RFC3339),
		Duration:         r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
	}
}

// WriteSummary writes s to path as YAML, replacing any previous file.
func WriteSummary(path string, s Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return nil
}
