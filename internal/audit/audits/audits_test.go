package audits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/formaudit/internal/artifact"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	ids := []string{}
	for _, m := range r.List() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"card-name", "card-number", "expiration", "cvc", "charset"}, ids)

	required, err := r.RequiredArtifacts()
	require.NoError(t, err)
	assert.Equal(t, []artifact.Name{artifact.FormFieldsName, artifact.MetaElementsName}, required)
}

func TestDefaultRegistryRunsEveryAudit(t *testing.T) {
	page := artifact.Artifacts{
		FormFields: []artifact.FormField{
			{Name: "ccname", Autocomplete: "cc-name"},
			{Name: "ccmonth", Autocomplete: "cc-exp-month"},
			{Name: "ccyear"},
		},
		MetaElements: []artifact.MetaElement{{Name: "charset", Content: "utf-8"}},
	}
	results, err := Default().Run(page)
	require.NoError(t, err)
	require.Len(t, results, 5)

	byID := map[string]float64{}
	for _, res := range results {
		require.False(t, res.Errored(), res.ID)
		if res.Verdict.Score != nil {
			byID[res.ID] = *res.Verdict.Score
		}
	}
	assert.Equal(t, map[string]float64{"card-name": 1, "expiration": 0.5, "charset": 1}, byID)
}
