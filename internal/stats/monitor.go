package stats

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gramforge/internal/fault"
)

const (
	metricsNamespace = "gramforge"
	unrollSubsystem  = "unroll"
)

// Outcome labels of the attempts counter.
const (
	OutcomeOK            = "ok"
	OutcomeResolution    = "resolution"
	OutcomeValidity      = "validity"
	OutcomeConfiguration = "configuration"
	OutcomeDeterminism   = "determinism"
	OutcomeOther         = "other"
)

var outcomes = []string{
	OutcomeOK,
	OutcomeResolution,
	OutcomeValidity,
	OutcomeConfiguration,
	OutcomeDeterminism,
	OutcomeOther,
}

// Monitor counts unroll attempts by outcome. It is safe for concurrent use and
// can be shared by every unroller of a batch.
type Monitor struct {
	counts   [6]atomic.Int64
	attempts *prometheus.CounterVec
}

// NewMonitor builds a monitor whose collector is registered on reg. A nil reg
// keeps the collector unregistered.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	factory := promauto.With(reg)
	return &Monitor{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: unrollSubsystem,
			Name:      "attempts_total",
			Help:      "Unroll attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Monitor) ObserveUnroll(err error) {
	outcome := Classify(err)
	for i, o := range outcomes {
		if o == outcome {
			m.counts[i].Add(1)
			break
		}
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// Classify maps an unroll error to its outcome label.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, fault.ErrConfiguration):
		return OutcomeConfiguration
	case errors.Is(err, fault.ErrDeterminism):
		return OutcomeDeterminism
	case errors.Is(err, fault.ErrResolution):
		return OutcomeResolution
	case errors.Is(err, fault.ErrValidity):
		return OutcomeValidity
	default:
		return OutcomeOther
	}
}

type AttemptSummary struct {
	Attempts    int64            `json:"attempts"`
	Successes   int64            `json:"successes"`
	Failures    int64            `json:"failures"`
	SuccessRate float64          `json:"success_rate"`
	ByOutcome   map[string]int64 `json:"by_outcome"`
}

func (m *Monitor) Summary() AttemptSummary {
	s := AttemptSummary{ByOutcome: make(map[string]int64, len(outcomes))}
	for i, o := range outcomes {
		n := m.counts[i].Load()
		if n == 0 {
			continue
		}
		s.ByOutcome[o] = n
		s.Attempts += n
	}
	s.Successes = s.ByOutcome[OutcomeOK]
	s.Failures = s.Attempts - s.Successes
	if s.Attempts > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Attempts)
	}
	return s
}

func (m *Monitor) SuccessRate() float64 {
	return m.Summary().SuccessRate
}

// Degenerate reports a grammar that looks unsatisfiable: at least minAttempts
// attempts with a success rate below threshold.
func (m *Monitor) Degenerate(minAttempts int64, threshold float64) bool {
	s := m.Summary()
	return s.Attempts >= minAttempts && s.SuccessRate < threshold
}
