package audit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/adityalohuni/formaudit/internal/artifact"
)

var ErrUnknownAudit = errors.New("unknown audit")

// Result is one audit's outcome inside a run. Exactly one of Verdict and
// Error is meaningful: Error is set when the audit could not run at all.
type Result struct {
	ID      string  `json:"id" yaml:"id"`
	Meta    Meta    `json:"meta" yaml:"meta"`
	Verdict Verdict `json:"verdict" yaml:"verdict"`
	Error   string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Errored reports whether the audit failed to run.
func (r Result) Errored() bool {
	return r.Error != ""
}

type Outcome string

const (
	OutcomePass          Outcome = "pass"
	OutcomePartial       Outcome = "partial"
	OutcomeFail          Outcome = "fail"
	OutcomeNotApplicable Outcome = "not_applicable"
	OutcomeError         Outcome = "error"
)

// Outcome buckets the result for display and counting.
func (r Result) Outcome() Outcome {
	switch {
	case r.Errored():
		return OutcomeError
	case r.Verdict.Score == nil:
		return OutcomeNotApplicable
	case *r.Verdict.Score >= 1:
		return OutcomePass
	case *r.Verdict.Score > 0:
		return OutcomePartial
	default:
		return OutcomeFail
	}
}

// Registry maps audit ids to audits in registration order.
type Registry struct {
	mu     sync.RWMutex
	audits map[string]Audit
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{audits: make(map[string]Audit)}
}

func (r *Registry) Register(a Audit) error {
	id := a.Meta().ID
	if id == "" {
		return errors.New("audit id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.audits[id]; exists {
		return fmt.Errorf("audit %q already registered", id)
	}
	r.audits[id] = a
	r.order = append(r.order, id)
	return nil
}

// MustRegister is Register for static wiring.
func (r *Registry) MustRegister(audits ...Audit) {
	for _, a := range audits {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(id string) (Audit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.audits[id]
	return a, ok
}

// List returns descriptors in registration order.
func (r *Registry) List() []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Meta, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.audits[id].Meta())
	}
	return out
}

// RequiredArtifacts returns the union of artifacts the selected audits
// need, in first-seen order. No ids selects every audit.
func (r *Registry) RequiredArtifacts(ids ...string) ([]artifact.Name, error) {
	selected, err := r.selection(ids)
	if err != nil {
		return nil, err
	}
	seen := map[artifact.Name]bool{}
	var out []artifact.Name
	for _, a := range selected {
		for _, name := range a.Meta().RequiredArtifacts {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out, nil
}

// Run evaluates the selected audits against one artifact snapshot. No ids
// selects every audit. An audit whose required artifacts are missing gets
// an errored Result instead of a verdict.
func (r *Registry) Run(artifacts artifact.Artifacts, ids ...string) ([]Result, error) {
	selected, err := r.selection(ids)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(selected))
	for _, a := range selected {
		meta := a.Meta()
		res := Result{ID: meta.ID, Meta: meta}
		if missing := firstMissing(artifacts, meta); missing != "" {
			res.Error = (&MissingArtifactError{Audit: meta.ID, Artifact: missing}).Error()
		} else {
			res.Verdict = a.Audit(artifacts)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Registry) selection(ids []string) ([]Audit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(ids) == 0 {
		ids = r.order
	}
	out := make([]Audit, 0, len(ids))
	for _, id := range ids {
		a, ok := r.audits[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAudit, id)
		}
		out = append(out, a)
	}
	return out, nil
}

func firstMissing(artifacts artifact.Artifacts, meta Meta) artifact.Name {
	for _, name := range meta.RequiredArtifacts {
		if !artifacts.Has(name) {
			return name
		}
	}
	return ""
}
