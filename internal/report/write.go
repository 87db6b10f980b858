package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/adityalohuni/formaudit/internal/audit"
)

type document struct {
	SnapshotID string  `json:"snapshotId" yaml:"snapshotId"`
	URL        string  `json:"url" yaml:"url"`
	GatheredAt string  `json:"gatheredAt" yaml:"gatheredAt"`
	AuditedAt  string  `json:"auditedAt" yaml:"auditedAt"`
	Summary    Summary `json:"summary" yaml:"summary"`
	Audits     []Entry `json:"audits" yaml:"audits"`
}

func (r Report) document() document {
	return document{
		SnapshotID: r.SnapshotID,
		URL:        r.URL,
		GatheredAt: r.GatheredAt.UTC().Format(time.RFC3339),
		AuditedAt:  r.AuditedAt.UTC().Format(time.RFC3339),
		Summary:    r.Summary(),
		Audits:     r.Entries(),
	}
}

// Write renders r to w in format.
func Write(w io.Writer, r Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.document())
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r.document()); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, RenderText(lipgloss.NewRenderer(w), r))
		return err
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

var (
	accent  = lipgloss.Color("#D97706")
	fg      = lipgloss.Color("#E8E6E3")
	dim     = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

type styles struct {
	header, box, title, dim, pass, partial, fail, skip lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(accent),
		box:     r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 2),
		title:   r.NewStyle().Bold(true).Foreground(fg),
		dim:     r.NewStyle().Foreground(dim),
		pass:    r.NewStyle().Foreground(success),
		partial: r.NewStyle().Foreground(warning),
		fail:    r.NewStyle().Foreground(danger),
		skip:    r.NewStyle().Foreground(dim),
	}
}

func marker(st styles, o audit.Outcome) (string, lipgloss.Style) {
	switch o {
	case audit.OutcomePass:
		return "✓", st.pass
	case audit.OutcomePartial:
		return "~", st.partial
	case audit.OutcomeFail:
		return "✗", st.fail
	case audit.OutcomeError:
		return "!", st.fail
	default:
		return "-", st.skip
	}
}

// RenderText renders the human report. Colors follow the renderer's
// terminal profile; plain writers get no escape codes.
func RenderText(renderer *lipgloss.Renderer, r Report) string {
	st := newStyles(renderer)
	var b strings.Builder

	s := r.Summary()
	counts := st.dim.Render(fmt.Sprintf("%d passed  ·  %d partial  ·  %d failed  ·  %d n/a  ·  %d errored",
		s.Passed, s.Partial, s.Failed, s.NotApplicable, s.Errored))
	url := r.URL
	if url == "" {
		url = "(no url)"
	}
	b.WriteString(st.box.Render(st.header.Render("Autofill audit") + "\n\n" + st.title.Render(url) + "\n" + counts))
	b.WriteString("\n\n")

	for _, e := range r.Entries() {
		mark, style := marker(st, e.outcome)
		score := ""
		if e.Score != nil {
			score = fmt.Sprintf(" %.1f", *e.Score)
		}
		fmt.Fprintf(&b, "  %s %s%s %s\n", style.Render(mark), e.Title, st.dim.Render(score), st.dim.Render("["+e.ID+"]"))
		switch {
		case e.Error != "":
			b.WriteString("      " + st.fail.Render(e.Error) + "\n")
		case e.Explanation != "":
			b.WriteString("      " + st.dim.Render(e.Explanation) + "\n")
		}
	}
	return b.String()
}
