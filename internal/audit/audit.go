// Package audit defines rule evaluators over gathered artifacts and the
// registry that discovers and runs them.
package audit

import (
	"fmt"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/i18n"
)

// Verdict is the outcome of one audit. A nil Score means the audit could
// not be evaluated; NotApplicable says why.
type Verdict struct {
	Score         *float64      `json:"score" yaml:"score"`
	NotApplicable bool          `json:"notApplicable,omitempty" yaml:"notApplicable,omitempty"`
	Explanation   *i18n.Message `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

func Pass() Verdict {
	return Score(1, nil)
}

func Fail(explanation i18n.Message) Verdict {
	return Score(0, &explanation)
}

func Partial(score float64, explanation i18n.Message) Verdict {
	return Score(score, &explanation)
}

func Score(score float64, explanation *i18n.Message) Verdict {
	return Verdict{Score: &score, Explanation: explanation}
}

// NotApplicable reports that nothing relevant exists on the page.
// explanation may be nil.
func NotApplicable(explanation *i18n.Message) Verdict {
	return Verdict{NotApplicable: true, Explanation: explanation}
}

// Passed reports a full score.
func (v Verdict) Passed() bool {
	return v.Score != nil && *v.Score == 1
}

// Meta is the static description of an audit.
type Meta struct {
	ID                string          `json:"id" yaml:"id"`
	Title             i18n.Message    `json:"title" yaml:"title"`
	FailureTitle      i18n.Message    `json:"failureTitle" yaml:"failureTitle"`
	Description       i18n.Message    `json:"description" yaml:"description"`
	RequiredArtifacts []artifact.Name `json:"requiredArtifacts" yaml:"requiredArtifacts"`
}

// Audit evaluates one rule. Implementations must be pure: the same
// artifacts always yield the same verdict, and artifacts are never
// modified.
type Audit interface {
	Meta() Meta
	Audit(artifacts artifact.Artifacts) Verdict
}

// Func adapts a descriptor and an evaluation function to Audit.
func Func(meta Meta, fn func(artifact.Artifacts) Verdict) Audit {
	return funcAudit{meta: meta, fn: fn}
}

type funcAudit struct {
	meta Meta
	fn   func(artifact.Artifacts) Verdict
}

func (a funcAudit) Meta() Meta { return a.meta }

func (a funcAudit) Audit(artifacts artifact.Artifacts) Verdict { return a.fn(artifacts) }

// MissingArtifactError is reported when an audit's inputs were never
// gathered. It is distinct from an empty artifact list.
type MissingArtifactError struct {
	Audit    string
	Artifact artifact.Name
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("audit %s: required artifact %s was not gathered", e.Audit, e.Artifact)
}
