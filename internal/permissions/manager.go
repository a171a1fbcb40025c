// Package permissions implements the Permission & Risk layer: risk
// classification, a persisted rule store, and the decision procedure that
// gates tool execution (spec §4.4).
package permissions

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/captainphantasy/floyd-core/pkg/model"
	"github.com/fsnotify/fsnotify"
)

// SessionWindow is the default lifetime of a `session`-scoped rule.
const SessionWindow = 24 * time.Hour

// Manager is the public surface named in spec §4.4: check(tool, args) and
// record(tool, decision, scope). It consults an in-memory rule set backed
// by a Store, and classifies risk for tools that have no matching rule.
type Manager struct {
	mu        sync.Mutex
	rules     map[string]model.PermissionRule
	store     Store
	logger    *slog.Logger
	workspace string
	now       func() time.Time

	watchMu     sync.Mutex
	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup
}

// NewManager loads rules from store and returns a ready Manager. A load
// failure is logged and treated as an empty rule set, per spec §4.4's
// persistence-failure tolerance.
func NewManager(store Store, workspace string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:     store,
		logger:    logger.With("component", "permissions.manager"),
		workspace: workspace,
		now:       time.Now,
	}
	rules, err := store.Load()
	if err != nil {
		m.logger.Warn("failed to load permission rules, starting empty", "error", err)
		rules = map[string]model.PermissionRule{}
	}
	m.rules = rules
	return m
}

// Check implements spec §4.4's decision procedure.
func (m *Manager) Check(toolName string, args []byte) model.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	// 1. Active rule lookup: exact name first, then most-specific pattern.
	if rule, key, ok := m.findActiveRuleLocked(toolName, now); ok {
		if rule.Decision == model.DecisionAllow || rule.Decision == model.DecisionDeny {
			if rule.Scope == model.ScopeOnce {
				delete(m.rules, key)
				m.persistLocked()
			}
			return rule.Decision
		}
	}

	// 2. Always-allow safe-read list.
	if SafeReadTools[strings.ToLower(toolName)] {
		return model.DecisionAllow
	}

	// 3. Always-prompt destructive list.
	if AlwaysPromptTools[strings.ToLower(toolName)] {
		return model.DecisionAsk
	}

	// 4. Risk classification from name/argument patterns.
	switch ClassifyRisk(toolName, args, m.workspace) {
	case RiskLow:
		return model.DecisionAllow
	default:
		return model.DecisionAsk
	}
}

// findActiveRuleLocked looks up a non-expired rule for toolName: an exact
// match first, then the most specific matching pattern rule. Expired rules
// are dropped as they're encountered (spec §8 invariant 7).
func (m *Manager) findActiveRuleLocked(toolName string, now time.Time) (model.PermissionRule, string, bool) {
	if rule, ok := m.rules[toolName]; ok {
		if rule.Expired(now) {
			delete(m.rules, toolName)
			m.persistLocked()
		} else {
			return rule, toolName, true
		}
	}

	var best model.PermissionRule
	var bestKey string
	bestSpecificity := -1
	for key, rule := range m.rules {
		if key == toolName {
			continue // exact rules handled above
		}
		if rule.Expired(now) {
			delete(m.rules, key)
			continue
		}
		if !matchesPattern(key, toolName) {
			continue
		}
		if spec := specificity(key); spec > bestSpecificity {
			best, bestKey, bestSpecificity = rule, key, spec
		}
	}
	if bestSpecificity >= 0 {
		return best, bestKey, true
	}
	return model.PermissionRule{}, "", false
}

// pathStore is satisfied by Store implementations backed by a single file,
// letting StartWatching discover what to watch without a hard dependency
// on FileStore.
type pathStore interface {
	Path() string
}

// StartWatching hot-reloads the rule set whenever the backing permissions
// file is created, written, or renamed on disk — e.g. a user hand-editing
// .floyd/permissions.json in an editor (spec §6). A no-op when the Store
// isn't file-backed.
func (m *Manager) StartWatching(ctx context.Context) error {
	ps, ok := m.store.(pathStore)
	if !ok {
		return nil
	}

	m.watchMu.Lock()
	if m.watcher != nil {
		m.watchMu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.watchMu.Unlock()
		return err
	}
	dir := filepath.Dir(ps.Path())
	if err := watcher.Add(dir); err != nil {
		m.watchMu.Unlock()
		_ = watcher.Close()
		return err
	}
	m.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchMu.Unlock()

	m.watchWg.Add(1)
	go m.watchLoop(watchCtx, ps.Path())
	return nil
}

// StopWatching tears down the watcher started by StartWatching, if any.
func (m *Manager) StopWatching() {
	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	watcher := m.watcher
	m.watcher = nil
	m.watchMu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	m.watchWg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context, watchedPath string) {
	defer m.watchWg.Done()
	m.watchMu.Lock()
	watcher := m.watcher
	m.watchMu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != watchedPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				m.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("permissions file watcher error", "error", err)
		}
	}
}

// reload re-reads the rule set from the Store, replacing the in-memory
// rules wholesale. Load failures are logged and leave the current rules
// untouched, since a transient read error during a concurrent external
// write is not evidence the file is actually empty.
func (m *Manager) reload() {
	rules, err := m.store.Load()
	if err != nil {
		m.logger.Warn("failed to reload permission rules after change notification", "error", err)
		return
	}
	m.mu.Lock()
	m.rules = rules
	m.mu.Unlock()
}

// Record stores a decision for toolName with the given scope (spec §4.4
// "Recording rules"). Recording a persistent rule writes the rule set
// through to the Store. Recording a once or session rule writes nothing
// by itself, but such rules are included whenever a later write (a
// persistent Record, or dropping a used or expired rule) saves the set.
// A session rule expires after SessionWindow (24h).
func (m *Manager) Record(toolNameOrPattern string, decision model.Decision, scope model.Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rule := model.PermissionRule{
		ToolNameOrPattern: toolNameOrPattern,
		Decision:          decision,
		Scope:             scope,
		GrantedAt:         now,
	}
	switch scope {
	case model.ScopeSession:
		exp := now.Add(SessionWindow)
		rule.ExpiresAt = &exp
	case model.ScopeOnce:
		// Expires after the first consultation; Check() deletes it.
	case model.ScopePersistent:
		// No expiration.
	}

	m.rules[toolNameOrPattern] = rule
	if scope == model.ScopePersistent {
		m.persistLocked()
	}
}

// persistLocked writes the current rule set to the Store. Failures are
// logged but never block the in-memory decision (spec §4.6 "Failure
// semantics": "Permission-manager persistence failures are logged but do
// not block the in-memory decision").
func (m *Manager) persistLocked() {
	if err := m.store.Save(m.rules); err != nil {
		m.logger.Warn("failed to persist permission rules", "error", err)
	}
}

// matchesPattern reports whether pattern (an exact name, `prefix*`,
// `*suffix`, or a regular expression) matches toolName. Grounded on
// internal/agent/approval.go's matchesPattern, extended with regex support
// per spec §3's "pattern rules (prefix*, *suffix, regex)".
func matchesPattern(pattern, toolName string) bool {
	if pattern == "*" || pattern == toolName {
		return true
	}
	if strings.HasPrefix(pattern, "mcp:") && strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(toolName, prefix)
	}
	if strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*") {
		return strings.HasPrefix(toolName, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*") {
		return strings.HasSuffix(toolName, strings.TrimPrefix(pattern, "*"))
	}
	if re, err := regexp.Compile(pattern); err == nil {
		// Only treat as regex if it contains a metacharacter beyond the
		// glob forms above, so plain literal strings that happen to
		// compile (most do) don't silently become regex matches.
		if strings.ContainsAny(pattern, `\^$.|?+()[]{}`) {
			return re.MatchString(toolName)
		}
	}
	return false
}

// specificity ranks pattern keys so the decision procedure can prefer the
// most specific matching pattern rule (exact names are handled
// separately): a bare `*` ranks 0, a `prefix*` or `*suffix` glob ranks by
// the length of its literal part, and any other pattern (a regular
// expression) ranks by its full length.
func specificity(pattern string) int {
	switch {
	case pattern == "*":
		return 0
	case strings.HasSuffix(pattern, "*"):
		return len(strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return len(strings.TrimPrefix(pattern, "*"))
	default:
		return len(pattern)
	}
}
