// Package document holds audits over document-level metadata.
package document

import (
	"strings"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/i18n"
)

var charsetStrings = i18n.UIStrings{
	"title":          "Properly defines charset",
	"failureTitle":   "Charset declaration is missing",
	"description":    "A character encoding declaration is required. It can be done with a <meta> tag in the document head.",
	"missingCharset": "No <meta> element declares the document character encoding.",
}

var charsetStr = i18n.NewMessageFn("audits/document/charset", charsetStrings)

// Charset passes when the head declares an encoding, either directly or
// through a content-type http-equiv.
type Charset struct{}

func (Charset) Meta() audit.Meta {
	return audit.Meta{
		ID:                "charset",
		Title:             charsetStr("title", nil),
		FailureTitle:      charsetStr("failureTitle", nil),
		Description:       charsetStr("description", nil),
		RequiredArtifacts: []artifact.Name{artifact.MetaElementsName},
	}
}

func (Charset) Audit(artifacts artifact.Artifacts) audit.Verdict {
	for _, m := range artifacts.MetaElements {
		switch m.Name {
		case "charset":
			if strings.TrimSpace(m.Content) != "" {
				return audit.Pass()
			}
		case "content-type":
			if strings.Contains(strings.ToLower(m.Content), "charset=") {
				return audit.Pass()
			}
		}
	}
	return audit.Fail(charsetStr("missingCharset", nil))
}
