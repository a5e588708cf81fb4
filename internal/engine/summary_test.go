package engine_test

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"codeberg.org/mutker/vitalsim/internal/engine"
	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestSummaryLogListsFirstFiveErrors(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, logger.InfoLevel, true)
	t.Cleanup(func() { logger.InitWithWriter(os.Stdout, logger.InfoLevel, false) })

	summary := engine.Summary{
		RunID:    "run-1",
		Scenario: "stable",
		Reason:   engine.ReasonCompleted,
		Ticks:    7,
		Failed:   7,
	}
	for i := 0; i < 7; i++ {
		summary.Errors = append(summary.Errors, engine.ErrorRecord{
			Time:    time.Now(),
			Elapsed: float64(i),
			Code:    errors.ErrDeliveryNetwork,
			Err:     fmt.Sprintf("failure-%d", i),
		})
	}

	summary.Log(logger.New("summary-test"))

	out := buf.String()
	assert.Contains(t, out, "Simulation finished")
	assert.Contains(t, out, "failure-4")
	assert.NotContains(t, out, "failure-5")
	assert.Contains(t, out, "... and 2 more errors")
}
