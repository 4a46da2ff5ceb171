package match

import (
	"strings"
	"time"
)

// DefaultBudget is the default wall-clock budget for evaluating an entire
// pattern list against one signature.
const DefaultBudget = 100 * time.Millisecond

// Pattern is a compiled rule pattern. A pattern matches "intent:target"
// signatures literally, with "*" standing for zero or more characters.
type Pattern struct {
	raw      string
	segments []string
	wildcard bool
}

// Compile compiles a raw pattern string into a Pattern.
// Every character except "*" is matched literally, so regex metacharacters
// in template patterns carry no special meaning.
func Compile(raw string) (*Pattern, error) {
	if raw == "" {
		return nil, &CompileError{Pattern: raw, Message: "pattern cannot be empty"}
	}

	return &Pattern{
		raw:      raw,
		segments: strings.Split(raw, "*"),
		wildcard: strings.Contains(raw, "*"),
	}, nil
}

// MustCompile compiles a pattern and panics on failure.
// Intended for compiled-in baseline rules only.
func MustCompile(raw string) *Pattern {
	p, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original pattern text.
func (p *Pattern) String() string {
	return p.raw
}

// Matches reports whether the signature matches the pattern.
func (p *Pattern) Matches(signature string) bool {
	if !p.wildcard {
		return signature == p.raw
	}

	first := p.segments[0]
	last := p.segments[len(p.segments)-1]

	if !strings.HasPrefix(signature, first) {
		return false
	}
	rest := signature[len(first):]

	if !strings.HasSuffix(rest, last) {
		return false
	}
	rest = rest[:len(rest)-len(last)]

	// Middle segments must appear in order in the remaining text.
	for _, mid := range p.segments[1 : len(p.segments)-1] {
		if mid == "" {
			continue
		}
		i := strings.Index(rest, mid)
		if i < 0 {
			return false
		}
		rest = rest[i+len(mid):]
	}

	return true
}

// Match evaluates an ordered pattern list against a signature under a single
// wall-clock budget. It returns the first matching pattern, or nil when no
// pattern matches. When the budget is exhausted before the list is fully
// evaluated, Match returns a *BudgetError and the caller must fail closed.
//
// A zero or negative budget means DefaultBudget.
func Match(patterns []*Pattern, signature string, budget time.Duration) (*Pattern, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}

	start := time.Now()
	deadline := start.Add(budget)

	for i, p := range patterns {
		if time.Now().After(deadline) {
			return nil, &BudgetError{
				Signature: signature,
				Budget:    budget,
				Elapsed:   time.Since(start),
				Evaluated: i,
				Total:     len(patterns),
			}
		}

		if p.Matches(signature) {
			return p, nil
		}
	}

	return nil, nil
}
