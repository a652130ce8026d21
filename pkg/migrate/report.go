package migrate

import (
	"github.com/baderkha/db-migrate/pkg/migrate/state"
	"github.com/rs/zerolog"
)

// Outcome : what happened to one table or file
type Outcome struct {
	Phase  state.Phase
	Name   string
	Status state.RunLogState
	Rows   int64
	Reason string
	Err    error
}

// Report : outcomes of a run in the order the tasks were created
type Report struct {
	RunID    string
	Outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Count : outcomes of a phase with the given status
func (r *Report) Count(phase state.Phase, status state.RunLogState) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Phase == phase && o.Status == status {
			n++
		}
	}
	return n
}

// Failed : every failed or aborted outcome
func (r *Report) Failed() []Outcome {
	var res []Outcome
	for _, o := range r.Outcomes {
		if o.Status == state.Failed || o.Status == state.Aborted {
			res = append(res, o)
		}
	}
	return res
}

// Log : one summary line per phase and one line per table that did not succeed
func (r *Report) Log(log zerolog.Logger, phase state.Phase) {
	log.Info().
		Str("phase", string(phase)).
		Int("succeeded", r.Count(phase, state.Success)).
		Int("skipped", r.Count(phase, state.Skipped)).
		Int("failed", r.Count(phase, state.Failed)).
		Int("aborted", r.Count(phase, state.Aborted)).
		Msg("summary")
	for _, o := range r.Outcomes {
		if o.Phase != phase {
			continue
		}
		switch o.Status {
		case state.Skipped:
			log.Info().Str("phase", string(phase)).Str("name", o.Name).Str("reason", o.Reason).Msg("skipped")
		case state.Failed:
			log.Error().Str("phase", string(phase)).Str("name", o.Name).Err(o.Err).Msg("failed")
		case state.Aborted:
			log.Warn().Str("phase", string(phase)).Str("name", o.Name).Msg("aborted")
		}
	}
}
