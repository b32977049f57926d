package upstream

import (
	"errors"
	"fmt"
)

// ErrNoHealthyTarget is returned by Pick when every target in the pool is
// Dead or at its connection cap. The coordinator translates it to 503
// without consuming retry budget, since no attempt was possible.
var ErrNoHealthyTarget = errors.New("no healthy upstream target")

// Pool is a named ordered set of upstream targets.
type Pool struct {
	Name    string
	Targets []*Target
}

// Pick selects a target by weighted least-connections among non-Dead
// targets and reserves a connection slot on it. The caller must Release
// the returned target when the proxied call completes.
//
// exclude lists targets already tried this request; they are skipped so a
// retry lands on a different target when one exists. If every candidate is
// excluded the exclusion is ignored rather than failing the request.
func (p *Pool) Pick(exclude map[*Target]bool) (*Target, error) {
	if best := p.pick(exclude); best != nil {
		return best, nil
	}
	// All eligible targets were excluded; retrying the same target beats
	// failing outright.
	if len(exclude) > 0 {
		if best := p.pick(nil); best != nil {
			return best, nil
		}
	}
	return nil, fmt.Errorf("pool %q: %w", p.Name, ErrNoHealthyTarget)
}

func (p *Pool) pick(exclude map[*Target]bool) *Target {
	var best *Target
	var bestScore float64

	for _, t := range p.Targets {
		if t.State() == Dead {
			continue
		}
		if exclude[t] {
			continue
		}
		score := t.score()
		if best == nil || score < bestScore {
			best = t
			bestScore = score
		}
	}

	if best == nil {
		return nil
	}
	if !best.Acquire() {
		// The winner hit its cap between scoring and acquiring; retry the
		// scan with it excluded.
		next := make(map[*Target]bool, len(exclude)+1)
		for t := range exclude {
			next[t] = true
		}
		next[best] = true
		return p.pick(next)
	}
	return best
}

// Healthy reports whether at least one target is not Dead.
func (p *Pool) Healthy() bool {
	for _, t := range p.Targets {
		if t.State() != Dead {
			return true
		}
	}
	return false
}
