// Package report turns audit results for one snapshot into text, JSON or
// YAML output.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/i18n"
)

type Report struct {
	SnapshotID string         `json:"snapshotId" yaml:"snapshotId"`
	URL        string         `json:"url" yaml:"url"`
	GatheredAt time.Time      `json:"gatheredAt" yaml:"gatheredAt"`
	AuditedAt  time.Time      `json:"auditedAt" yaml:"auditedAt"`
	Results    []audit.Result `json:"results" yaml:"results"`
}

// Summary counts results per outcome. Audits are never weighted against
// each other.
type Summary struct {
	Passed        int `json:"passed" yaml:"passed"`
	Partial       int `json:"partial" yaml:"partial"`
	Failed        int `json:"failed" yaml:"failed"`
	NotApplicable int `json:"notApplicable" yaml:"notApplicable"`
	Errored       int `json:"errored" yaml:"errored"`
}

func (r Report) Summary() Summary {
	var s Summary
	for _, res := range r.Results {
		switch res.Outcome() {
		case audit.OutcomePass:
			s.Passed++
		case audit.OutcomePartial:
			s.Partial++
		case audit.OutcomeFail:
			s.Failed++
		case audit.OutcomeNotApplicable:
			s.NotApplicable++
		case audit.OutcomeError:
			s.Errored++
		}
	}
	return s
}

// BelowThreshold returns the results that errored or scored under min.
// Not-applicable audits never count against the threshold.
func (r Report) BelowThreshold(min float64) []audit.Result {
	var out []audit.Result
	for _, res := range r.Results {
		if res.Errored() || (res.Verdict.Score != nil && *res.Verdict.Score < min) {
			out = append(out, res)
		}
	}
	return out
}

// Entry is a result with its messages rendered in English.
type Entry struct {
	ID            string        `json:"id" yaml:"id"`
	Title         string        `json:"title" yaml:"title"`
	Description   string        `json:"description" yaml:"description"`
	Score         *float64      `json:"score" yaml:"score"`
	NotApplicable bool          `json:"notApplicable,omitempty" yaml:"notApplicable,omitempty"`
	Explanation   string        `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Error         string        `json:"error,omitempty" yaml:"error,omitempty"`
	Verdict       audit.Verdict `json:"verdict" yaml:"verdict"`

	outcome audit.Outcome
}

// Entries renders every result. The title switches to the failure title
// when an applicable audit did not fully pass.
func (r Report) Entries() []Entry {
	out := make([]Entry, 0, len(r.Results))
	for _, res := range r.Results {
		e := Entry{
			ID:            res.ID,
			Title:         i18n.Format(res.Meta.Title),
			Description:   i18n.Format(res.Meta.Description),
			Score:         res.Verdict.Score,
			NotApplicable: res.Verdict.NotApplicable,
			Error:         res.Error,
			Verdict:       res.Verdict,
			outcome:       res.Outcome(),
		}
		if res.Errored() || (res.Verdict.Score != nil && !res.Verdict.Passed()) {
			e.Title = i18n.Format(res.Meta.FailureTitle)
		}
		if res.Verdict.Explanation != nil {
			e.Explanation = i18n.Format(*res.Verdict.Explanation)
		}
		out = append(out, e)
	}
	return out
}

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var Formats = []Format{FormatText, FormatJSON, FormatYAML}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}
