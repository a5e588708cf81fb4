package engine

import (
	"time"

	"codeberg.org/mutker/vitalsim/internal/logger"
)

// maxSummaryErrors is how many delivery errors the end-of-run summary lists.
const maxSummaryErrors = 5

// StopReason tells why a run left the Running state.
type StopReason string

const (
	ReasonCompleted StopReason = "completed"
	ReasonStopped   StopReason = "stopped"
	ReasonCancelled StopReason = "cancelled"
)

type Summary struct {
	RunID     string
	Scenario  string
	PatientID string
	DeviceID  string
	StartedAt time.Time
	EndedAt   time.Time
	Reason    StopReason
	Ticks     int
	Sent      int
	Failed    int
	// Pending counts deliveries still in flight when the summary was taken.
	Pending int
	Errors  []ErrorRecord
}

// Log writes the summary, listing at most the first five errors.
func (s Summary) Log(log logger.Logger) {
	log.Info().
		Str("run_id", s.RunID).
		Str("scenario", s.Scenario).
		Str("reason", string(s.Reason)).
		Dur("duration", s.EndedAt.Sub(s.StartedAt)).
		Int("ticks", s.Ticks).
		Int("sent", s.Sent).
		Int("failed", s.Failed).
		Int("pending", s.Pending).
		Msg("Simulation finished")

	for i, rec := range s.Errors {
		if i == maxSummaryErrors {
			log.Warn().
				Int("more", len(s.Errors)-maxSummaryErrors).
				Msgf("... and %d more errors", len(s.Errors)-maxSummaryErrors)
			break
		}
		log.Warn().
			Float64("elapsed", rec.Elapsed).
			Str("error_code", string(rec.Code)).
			Int("status", rec.Status).
			Str("error", rec.Err).
			Msg("Delivery error")
	}
}
