package chaos

import (
	"sort"
	"sync"
)

// IntentStats holds the injection tallies for one (agent, intent) pair.
type IntentStats struct {
	Agent     string `json:"agent"`
	Intent    string `json:"intent"`
	Attempted int64  `json:"attempted"`
	Triggered int64  `json:"triggered"`
}

// ObservedRate returns triggered/attempted, or 0 when nothing was attempted.
// Comparing this against the configured block rate validates the injector.
func (s IntentStats) ObservedRate() float64 {
	if s.Attempted == 0 {
		return 0
	}
	return float64(s.Triggered) / float64(s.Attempted)
}

// Stats tallies chaos injection attempts and triggers per agent and intent.
type Stats struct {
	mu     sync.RWMutex
	counts map[statsKey]*tally
}

type statsKey struct {
	agent  string
	intent string
}

type tally struct {
	attempted int64
	triggered int64
}

// NewStats creates an empty tally set.
func NewStats() *Stats {
	return &Stats{
		counts: make(map[statsKey]*tally),
	}
}

// Record tallies one eligible injection decision.
func (s *Stats) Record(agent, intent string, triggered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := statsKey{agent: agent, intent: intent}
	t, ok := s.counts[key]
	if !ok {
		t = &tally{}
		s.counts[key] = t
	}

	t.attempted++
	if triggered {
		t.triggered++
	}
}

// Get returns the tallies for one (agent, intent) pair.
func (s *Stats) Get(agent, intent string) IntentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.counts[statsKey{agent: agent, intent: intent}]
	if !ok {
		return IntentStats{Agent: agent, Intent: intent}
	}

	return IntentStats{
		Agent:     agent,
		Intent:    intent,
		Attempted: t.attempted,
		Triggered: t.triggered,
	}
}

// Snapshot returns all tallies sorted by agent then intent.
func (s *Stats) Snapshot() []IntentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]IntentStats, 0, len(s.counts))
	for key, t := range s.counts {
		out = append(out, IntentStats{
			Agent:     key.agent,
			Intent:    key.intent,
			Attempted: t.attempted,
			Triggered: t.triggered,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Agent != out[j].Agent {
			return out[i].Agent < out[j].Agent
		}
		return out[i].Intent < out[j].Intent
	})

	return out
}
