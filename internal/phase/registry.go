package phase

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/onboard-cli/internal/model"
)

//go:embed defaults.yaml
var defaultTables []byte

// Registry is the set of configured tracks, ordered upstream-first.
type Registry struct {
	tables     []*Table
	byWorkflow map[model.WorkflowType]*Table
}

type document struct {
	Tracks []*Table `yaml:"tracks"`
}

// Default returns the registry built from the embedded phase tables.
func Default() (*Registry, error) {
	return Parse(defaultTables)
}

// LoadFile reads phase tables from a YAML file, falling back to the embedded
// defaults when path is empty.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "phase: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a phase table document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "phase: decode tables")
	}
	return New(doc.Tracks...)
}

// New validates tables and orders them so every upstream precedes its dependents.
func New(tables ...*Table) (*Registry, error) {
	if len(tables) == 0 {
		return nil, eris.New("phase: no tracks configured")
	}

	byWorkflow := make(map[model.WorkflowType]*Table, len(tables))
	for _, t := range tables {
		if err := validate(t); err != nil {
			return nil, err
		}
		if _, dup := byWorkflow[t.Workflow]; dup {
			return nil, eris.Errorf("phase: duplicate track %q", t.Workflow)
		}
		t.buildIndex()
		byWorkflow[t.Workflow] = t
	}

	for _, t := range tables {
		if t.Upstream == "" {
			continue
		}
		if _, ok := byWorkflow[t.Upstream]; !ok {
			return nil, eris.Errorf("phase: track %q depends on unknown track %q", t.Workflow, t.Upstream)
		}
	}

	ordered, err := topoSort(tables, byWorkflow)
	if err != nil {
		return nil, err
	}
	return &Registry{tables: ordered, byWorkflow: byWorkflow}, nil
}

func validate(t *Table) error {
	if t == nil || t.Workflow == "" {
		return eris.New("phase: track without workflow")
	}
	if len(t.Phases) < 2 {
		return eris.Errorf("phase: track %q needs at least two phases", t.Workflow)
	}
	keys := make(map[string]bool, len(t.Phases))
	for _, p := range t.Phases {
		if p.Key == "" {
			return eris.Errorf("phase: track %q has a phase without key", t.Workflow)
		}
		if p.Key == model.StatusWaiting {
			return eris.Errorf("phase: track %q uses reserved phase %q", t.Workflow, model.StatusWaiting)
		}
		keys[p.Key] = true
	}
	if len(t.Success) == 0 {
		return eris.Errorf("phase: track %q has no success phase", t.Workflow)
	}
	for _, s := range t.Success {
		if !keys[s] {
			return eris.Errorf("phase: track %q success phase %q not in table", t.Workflow, s)
		}
	}
	for name, key := range map[string]string{
		"failure":     t.Failure,
		"in_progress": t.InProgress,
		"bulk_phase":  t.BulkPhase,
	} {
		if key != "" && !keys[key] {
			return eris.Errorf("phase: track %q %s phase %q not in table", t.Workflow, name, key)
		}
	}
	if t.Failure == "" {
		return eris.Errorf("phase: track %q has no failure phase", t.Workflow)
	}
	if t.Upstream == t.Workflow {
		return eris.Errorf("phase: track %q depends on itself", t.Workflow)
	}
	if t.Trigger != nil {
		if t.Trigger.Workflow == "" {
			return eris.Errorf("phase: track %q trigger has no workflow", t.Workflow)
		}
		if t.Trigger.Auto && t.Upstream == "" {
			return eris.Errorf("phase: track %q auto trigger requires an upstream", t.Workflow)
		}
	}
	if t.Title == "" {
		t.Title = Humanize(string(t.Workflow))
	}
	return nil
}

func topoSort(tables []*Table, byWorkflow map[model.WorkflowType]*Table) ([]*Table, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[model.WorkflowType]int, len(tables))
	ordered := make([]*Table, 0, len(tables))

	var visit func(t *Table) error
	visit = func(t *Table) error {
		switch state[t.Workflow] {
		case done:
			return nil
		case visiting:
			return eris.Errorf("phase: dependency cycle through track %q", t.Workflow)
		}
		state[t.Workflow] = visiting
		if t.Upstream != "" {
			if err := visit(byWorkflow[t.Upstream]); err != nil {
				return err
			}
		}
		state[t.Workflow] = done
		ordered = append(ordered, t)
		return nil
	}

	for _, t := range tables {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// Tables returns the tracks, upstream-first.
func (r *Registry) Tables() []*Table {
	return r.tables
}

// Get returns the table for wf.
func (r *Registry) Get(wf model.WorkflowType) (*Table, bool) {
	t, ok := r.byWorkflow[wf]
	return t, ok
}

// CountKeys returns every count key referenced by any track, without duplicates.
func (r *Registry) CountKeys() []model.CountKey {
	seen := make(map[model.CountKey]bool)
	var keys []model.CountKey
	for _, t := range r.tables {
		for _, k := range []model.CountKey{t.Counts.Done, t.Counts.Total} {
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
