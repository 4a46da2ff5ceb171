package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kagehq/echos-sub001/pkg/policy/match"
	"github.com/kagehq/echos-sub001/pkg/telemetry/metrics"
	"github.com/kagehq/echos-sub001/pkg/timeline"
)

// Status is a token lifecycle state.
type Status string

const (
	// StatusActive tokens are usable for the decision bypass.
	StatusActive Status = "active"

	// StatusPaused tokens are temporarily unusable; resume restores them.
	StatusPaused Status = "paused"

	// StatusRevoked is terminal.
	StatusRevoked Status = "revoked"

	// StatusExpired is the effective status reported for tokens past their
	// expiry. It is computed lazily, never stored.
	StatusExpired Status = "expired"
)

// MinDuration is the floor applied to every issuance duration. Requests
// below it are rounded up so near-instant tokens cannot exist.
const MinDuration = 60 * time.Second

// Record is one issued token. Value holds the raw bearer string and is
// populated only on the Record returned by Issue; listings and
// introspections carry the audit hash instead.
type Record struct {
	ID        string    `json:"id"`
	Value     string    `json:"token,omitempty"`
	Hash      string    `json:"token_hash"`
	Agent     string    `json:"agent"`
	Scopes    []string  `json:"scopes"`
	Status    Status    `json:"status"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason,omitempty"`
}

// Introspection is the result of looking up a bearer value. Unknown,
// malformed, or forged values yield Active false with no record fields.
type Introspection struct {
	Active    bool      `json:"active"`
	Status    Status    `json:"status,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	TokenHash string    `json:"token_hash,omitempty"`
}

// Config contains configuration for the token manager.
type Config struct {
	// SigningKey signs bearer values. Empty means a random per-process key;
	// tokens then do not survive a restart, which matches their in-memory
	// records.
	SigningKey string `yaml:"signing_key" json:"-"`
}

// Manager owns all token records and the signing key.
type Manager struct {
	key      []byte
	logger   *slog.Logger
	timeline *timeline.Log
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	records map[string]*Record // keyed by token id
}

// NewManager creates a token manager. The timeline log and metrics are
// optional; when present every lifecycle transition is appended and every
// issuance counted.
func NewManager(config *Config, tl *timeline.Log, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	key := []byte(config.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("token: cannot read entropy for signing key: " + err.Error())
		}
	}

	return &Manager{
		key:      key,
		logger:   logger.With("component", "token"),
		timeline: tl,
		metrics:  m,
		records:  make(map[string]*Record),
	}
}

// Issue mints a token for agent covering the given intent scopes. Durations
// below MinDuration are rounded up to it. The returned Record is the only
// place the raw bearer value ever appears.
func (m *Manager) Issue(agent string, scopes []string, duration time.Duration, reason string) (*Record, error) {
	if agent == "" {
		return nil, &GrantError{Reason: "agent is required"}
	}
	if len(scopes) == 0 {
		return nil, &GrantError{Reason: "at least one scope is required"}
	}
	for _, scope := range scopes {
		if err := match.ValidateOverride(scope); err != nil {
			return nil, &GrantError{Reason: fmt.Sprintf("invalid scope %q: %v", scope, err)}
		}
	}
	if duration < MinDuration {
		duration = MinDuration
	}

	id := uuid.New().String()
	value := id + "." + m.sign(id)
	now := time.Now().UTC()

	record := &Record{
		ID:        id,
		Hash:      AuditHash(value),
		Agent:     agent,
		Scopes:    append([]string(nil), scopes...),
		Status:    StatusActive,
		IssuedAt:  now,
		ExpiresAt: now.Add(duration),
		Reason:    reason,
	}

	m.mu.Lock()
	m.records[id] = record
	m.mu.Unlock()

	m.logger.Info("token issued",
		"agent", agent,
		"scopes", scopes,
		"expires_at", record.ExpiresAt,
		"token_hash", record.Hash,
	)
	m.metrics.RecordTokenIssued()
	m.record(record, StatusActive)

	out := record.clone()
	out.Value = value
	return out, nil
}

// Introspect reports the state of a bearer value. It never fails: unknown,
// malformed, and forged values all produce Active false.
func (m *Manager) Introspect(value string) Introspection {
	record := m.lookup(value)
	if record == nil {
		return Introspection{Active: false}
	}

	status := record.Status
	if status == StatusActive && !time.Now().Before(record.ExpiresAt) {
		status = StatusExpired
	}

	return Introspection{
		Active:    status == StatusActive,
		Status:    status,
		Agent:     record.Agent,
		Scopes:    record.Scopes,
		ExpiresAt: record.ExpiresAt,
		TokenHash: record.Hash,
	}
}

// Authorize reports whether the bearer value grants the intent: the token
// must verify, be active, be unexpired, and carry a scope matching the
// intent. Failures are silent; callers fall through to policy evaluation.
func (m *Manager) Authorize(value, intent string) (string, bool) {
	record := m.lookup(value)
	if record == nil {
		return "", false
	}
	if record.Status != StatusActive || !time.Now().Before(record.ExpiresAt) {
		return "", false
	}

	for _, scope := range record.Scopes {
		pattern, err := match.Compile(scope)
		if err != nil {
			continue
		}
		if pattern.Matches(intent) {
			return record.Hash, true
		}
	}
	return "", false
}

// Pause suspends an active token. Unknown values and non-active states are
// no-ops. It reports whether a transition happened.
func (m *Manager) Pause(value string) bool {
	return m.transition(value, StatusActive, StatusPaused)
}

// Resume reactivates a paused token. Revocation is terminal, so resuming a
// revoked token has no effect.
func (m *Manager) Resume(value string) bool {
	return m.transition(value, StatusPaused, StatusActive)
}

// Revoke terminally disables a token. Idempotent on unknown or already
// revoked values.
func (m *Manager) Revoke(value string) bool {
	id, ok := m.verify(value)
	if !ok {
		return false
	}

	m.mu.Lock()
	record, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	changed := record.Status != StatusRevoked
	record.Status = StatusRevoked
	snapshot := record.clone()
	m.mu.Unlock()

	if changed {
		m.logger.Info("token revoked", "agent", snapshot.Agent, "token_hash", snapshot.Hash)
		m.record(snapshot, StatusRevoked)
	}
	return changed
}

// List returns every record, raw values omitted, sorted by issuance time
// then id.
func (m *Manager) List() []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Prune removes revoked records and records expired before the cutoff.
// Expiry itself stays lazy; pruning only reclaims memory from records that
// can never authorize again. Returns how many records were removed.
func (m *Manager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, record := range m.records {
		if record.Status == StatusRevoked || record.ExpiresAt.Before(cutoff) {
			delete(m.records, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of retained records.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// transition moves a token from one status to another. The status check and
// write happen inside the lock; callers only ever see snapshots.
func (m *Manager) transition(value string, from, to Status) bool {
	id, ok := m.verify(value)
	if !ok {
		return false
	}

	m.mu.Lock()
	record, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	changed := record.Status == from
	if changed {
		record.Status = to
	}
	snapshot := record.clone()
	m.mu.Unlock()

	if changed {
		m.logger.Info("token status changed",
			"agent", snapshot.Agent,
			"status", to,
			"token_hash", snapshot.Hash,
		)
		m.record(snapshot, to)
	}
	return changed
}

// lookup verifies a bearer value's signature and returns a point-in-time copy
// of its record, or nil when the value is malformed, forged, or unknown.
// Callers never hold a reference into the live map, so their status and
// expiry reads race with nothing.
func (m *Manager) lookup(value string) *Record {
	id, ok := m.verify(value)
	if !ok {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil
	}
	return record.clone()
}

// verify checks a bearer value's shape and signature and returns its id.
func (m *Manager) verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(m.sign(id))) {
		return "", false
	}
	return id, true
}

// clone copies a record, including its scope slice.
func (r *Record) clone() *Record {
	out := *r
	out.Scopes = append([]string(nil), r.Scopes...)
	return &out
}

// sign computes the hex HMAC-SHA256 of a token id under the manager key.
func (m *Manager) sign(id string) string {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}

// record appends a lifecycle transition to the timeline, if one is wired.
func (m *Manager) record(r *Record, status Status) {
	if m.timeline == nil {
		return
	}
	m.timeline.Append(timeline.Entry{
		Type:      timeline.EntryToken,
		Agent:     r.Agent,
		Status:    string(status),
		TokenHash: r.Hash,
		Meta: map[string]any{
			"scopes":     append([]string(nil), r.Scopes...),
			"expires_at": r.ExpiresAt,
		},
	})
}
