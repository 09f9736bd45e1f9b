package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"

	"github.com/parentline/guardian/pkg/observability/logging"
	"github.com/parentline/guardian/pkg/observability/metrics"
	"github.com/parentline/guardian/pkg/session"
)

// ErrRuleSetUnavailable is returned when no valid rule set can be loaded at
// startup. At runtime a failed reload keeps the last-known-good set instead.
var ErrRuleSetUnavailable = errors.New("policy rule set unavailable")

// phaseFiles maps each therapy phase to its rule file in the policy dir.
var phaseFiles = map[session.TherapyPhase]string{
	session.PhaseCrisis:         "crisis.yaml",
	session.PhaseUnderstanding:  "understanding.yaml",
	session.PhaseAction:         "action.yaml",
	session.PhaseSustainability: "sustainability.yaml",
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// snapshot is one immutable generation of all phase rule sets. Readers get
// the whole snapshot or none of it; reload swaps the pointer atomically so
// no evaluation ever observes a half-updated set.
type snapshot struct {
	revision uint64
	sets     map[session.TherapyPhase]*RuleSet
}

// Manager owns the active rule sets and their hot reload.
type Manager struct {
	dir      string
	active   atomic.Pointer[snapshot]
	revision atomic.Uint64
}

// NewManager loads and validates the rule sets from dir. A missing or
// invalid rule set at startup is fatal: the service must not start
// without reviewed guardrails.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{dir: dir}
	snap, err := m.loadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleSetUnavailable, err)
	}
	m.active.Store(snap)
	metrics.RuleSetRevision.Set(float64(snap.revision))
	return m, nil
}

// ActiveRuleSet returns the current rule set for a phase.
func (m *Manager) ActiveRuleSet(phase session.TherapyPhase) *RuleSet {
	snap := m.active.Load()
	if snap == nil {
		return nil
	}
	return snap.sets[phase]
}

// Revision returns the monotonic revision of the active snapshot.
func (m *Manager) Revision() uint64 {
	snap := m.active.Load()
	if snap == nil {
		return 0
	}
	return snap.revision
}

// RuleCounts returns the number of rules per phase, for the status API.
func (m *Manager) RuleCounts() map[session.TherapyPhase]int {
	counts := make(map[session.TherapyPhase]int, len(phaseFiles))
	snap := m.active.Load()
	if snap == nil {
		return counts
	}
	for phase, rs := range snap.sets {
		counts[phase] = len(rs.Rules)
	}
	return counts
}

// Reload re-reads the policy dir and atomically swaps in the new snapshot.
// On any validation failure the last-known-good snapshot stays active and
// an operational alert is raised.
func (m *Manager) Reload() error {
	snap, err := m.loadSnapshot()
	if err != nil {
		metrics.RuleSetReloadFailures.Inc()
		logging.LogEvent("policy_reload_rejected", map[string]interface{}{
			"error":           err.Error(),
			"active_revision": m.Revision(),
		})
		logging.Errorf("Policy reload rejected, keeping last-known-good revision %d: %v", m.Revision(), err)
		return err
	}
	m.active.Store(snap)
	metrics.RuleSetRevision.Set(float64(snap.revision))
	logging.Infof("Policy rule sets reloaded: revision=%d", snap.revision)
	return nil
}

func (m *Manager) loadSnapshot() (*snapshot, error) {
	sets := make(map[session.TherapyPhase]*RuleSet, len(phaseFiles))
	for phase, file := range phaseFiles {
		rs, err := LoadRuleSet(filepath.Join(m.dir, file), phase)
		if err != nil {
			return nil, err
		}
		sets[phase] = rs
	}
	return &snapshot{revision: m.revision.Add(1), sets: sets}, nil
}

// LoadRuleSet parses, validates and compiles one phase rule file.
func LoadRuleSet(path string, phase session.TherapyPhase) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}

	rf := ruleFile{}
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rule file %s contains no rules", path)
	}

	seen := make(map[string]bool, len(rf.Rules))
	for i := range rf.Rules {
		r := &rf.Rules[i]
		if err := r.compile(); err != nil {
			return nil, fmt.Errorf("rule file %s: %w", path, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule file %s: duplicate rule id %q", path, r.ID)
		}
		seen[r.ID] = true
	}

	sortRules(rf.Rules)
	return &RuleSet{Phase: phase, Rules: rf.Rules}, nil
}

// Watch reloads on filesystem changes to the policy dir until stop is
// closed. Editors and ConfigMap mounts produce multiple events per change;
// a failed reload in between is harmless since last-known-good stays active.
func (m *Manager) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policy watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("policy watcher add %s: %w", m.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".yaml") {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				logging.Debugf("Policy file change detected: %s", ev)
				_ = m.Reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Errorf("Policy watcher error: %v", err)
			}
		}
	}()

	logging.Infof("Watching policy dir %s for changes", m.dir)
	return nil
}
