package chaos

import (
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"time"
)

// Config is the per-agent chaos configuration, attached via role overrides.
type Config struct {
	// Enabled turns injection on for the agent.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// BlockRate is the probability in [0,1] that an eligible event is
	// chaos-blocked.
	BlockRate float64 `yaml:"block_rate" json:"block_rate"`

	// LatencyMS is a fixed delay in milliseconds applied to every eligible
	// event, independent of the block decision.
	LatencyMS int `yaml:"latency_ms" json:"latency_ms"`

	// Seed, when set, makes the block decision deterministic per event id.
	Seed *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// TargetIntents restricts injection to the listed intents when non-empty.
	TargetIntents []string `yaml:"target_intents,omitempty" json:"target_intents,omitempty"`

	// ExemptIntents disables injection for the listed intents. Exemption
	// always wins over TargetIntents.
	ExemptIntents []string `yaml:"exempt_intents,omitempty" json:"exempt_intents,omitempty"`
}

// Result is the outcome of one injection decision.
type Result struct {
	// Eligible reports whether the event was subject to injection at all.
	Eligible bool

	// Triggered reports whether the event must be chaos-blocked.
	Triggered bool

	// Delay is the synthetic latency to apply before returning the verdict.
	Delay time.Duration
}

// Injector draws injection decisions and tallies observed rates.
type Injector struct {
	stats  *Stats
	logger *slog.Logger
}

// NewInjector creates a chaos injector.
func NewInjector(logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{
		stats:  NewStats(),
		logger: logger.With("component", "chaos"),
	}
}

// Stats returns the injector's tally of attempted and triggered injections.
func (in *Injector) Stats() *Stats {
	return in.stats
}

// Inject decides whether the given event is chaos-blocked and how much
// synthetic latency it receives. Ineligible events (injection disabled,
// intent exempt, or intent outside a non-empty target list) always return a
// zero Result and are not tallied.
func (in *Injector) Inject(cfg *Config, agentID, intent, eventID string) Result {
	if cfg == nil || !cfg.Enabled {
		return Result{}
	}

	if !eligible(cfg, intent) {
		return Result{}
	}

	var draw float64
	if cfg.Seed != nil {
		draw = seededDraw(*cfg.Seed, eventID)
	} else {
		draw = rand.Float64()
	}

	res := Result{
		Eligible:  true,
		Triggered: draw < cfg.BlockRate,
		Delay:     time.Duration(cfg.LatencyMS) * time.Millisecond,
	}

	in.stats.Record(agentID, intent, res.Triggered)

	if res.Triggered {
		in.logger.Info("chaos injection triggered",
			"agent", agentID,
			"intent", intent,
			"event_id", eventID,
			"block_rate", cfg.BlockRate,
			"seeded", cfg.Seed != nil,
		)
	}

	return res
}

// eligible reports whether the intent is subject to injection.
// Exemption takes precedence over targeting.
func eligible(cfg *Config, intent string) bool {
	for _, ex := range cfg.ExemptIntents {
		if ex == intent {
			return false
		}
	}

	if len(cfg.TargetIntents) == 0 {
		return true
	}
	for _, tg := range cfg.TargetIntents {
		if tg == intent {
			return true
		}
	}
	return false
}

// seededDraw returns a uniform [0,1) value that is a pure function of
// (seed, eventID). The pair is hashed with FNV-64a and the digest seeds a
// single step of a 64-bit linear congruential generator.
func seededDraw(seed int64, eventID string) float64 {
	h := fnv.New64a()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	h.Write([]byte(eventID))

	// Knuth MMIX LCG constants.
	state := h.Sum64()*6364136223846793005 + 1442695040888963407

	// Top 53 bits give a uniform double in [0,1).
	return float64(state>>11) / (1 << 53)
}
