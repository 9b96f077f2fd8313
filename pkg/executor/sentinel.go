package executor

import (
	"log/slog"

	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/store"
)

// Sentinel reconciles run records against lease limits. It never
// interprets business outcome, only resource compliance.
type Sentinel struct {
	store  *store.Store
	logger *slog.Logger
}

func NewSentinel(s *store.Store, logger *slog.Logger) *Sentinel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sentinel{store: s, logger: logger}
}

// Report is the sentinel's view of one lease's execution.
type Report struct {
	LeaseID     string                   `json:"lease_id"`
	Status      contracts.SentinelStatus `json:"status"`
	DurationS   float64                  `json:"duration_s,omitempty"`
	LimitS      int                      `json:"limit_s,omitempty"`
	ExitCode    int                      `json:"exit_code,omitempty"`
	Description string                   `json:"description,omitempty"`
}

// Check classifies the lease's run record against its wallclock limit.
// A missing record means execution has not started; a record flagged
// timed-out or exceeding the limit is a violation and gets logged.
func (s *Sentinel) Check(l contracts.Lease) (Report, error) {
	rep := Report{LeaseID: l.LeaseID, LimitS: l.Limits.WallclockTimeoutS}

	if !s.store.Exists(RunPath(l.LeaseID)) {
		if s.store.Exists(StartedPath(l.LeaseID)) {
			rep.Status = contracts.SentinelInProgress
			rep.Description = "execution started, no run record yet"
		} else {
			rep.Status = contracts.SentinelNotStarted
			rep.Description = "no run record for lease"
		}
		return rep, nil
	}
	var rec contracts.RunRecord
	if err := s.store.ReadJSON(RunPath(l.LeaseID), &rec); err != nil {
		return Report{}, err
	}
	rep.DurationS = rec.DurationS
	rep.ExitCode = rec.ExitCode

	limit := float64(l.Limits.WallclockTimeoutS)
	switch {
	case rec.TimedOut || (limit > 0 && rec.DurationS > limit):
		rep.Status = contracts.SentinelTimeoutExceeded
		rep.Description = "wallclock limit exceeded"
		s.logger.Warn("resource violation",
			"lease_id", l.LeaseID,
			"violation", "wallclock_timeout",
			"observed_s", rec.DurationS,
			"limit_s", l.Limits.WallclockTimeoutS)
	default:
		rep.Status = contracts.SentinelWithinLimits
	}
	return rep, nil
}
