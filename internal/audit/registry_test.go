package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/i18n"
)

func stubAudit(id string, required ...artifact.Name) Audit {
	return Func(Meta{ID: id, RequiredArtifacts: required}, func(a artifact.Artifacts) Verdict {
		if len(a.FormFields) > 0 {
			return Pass()
		}
		return NotApplicable(nil)
	})
}

func TestRegistryRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubAudit("a")))
	assert.ErrorContains(t, r.Register(stubAudit("a")), "already registered")
	assert.Error(t, r.Register(stubAudit("")))
	assert.Panics(t, func() { r.MustRegister(stubAudit("a")) })
}

func TestRegistryListKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(stubAudit("z"), stubAudit("a"), stubAudit("m"))
	var ids []string
	for _, m := range r.List() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)

	_, ok := r.Get("a")
	assert.True(t, ok)
	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestRegistryRunMissingArtifactIsErrored(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(stubAudit("fields", artifact.FormFieldsName), stubAudit("metas", artifact.MetaElementsName))

	results, err := r.Run(artifact.Artifacts{FormFields: []artifact.FormField{{Name: "x"}}})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Errored())
	assert.True(t, results[0].Verdict.Passed())

	assert.True(t, results[1].Errored())
	assert.Contains(t, results[1].Error, "MetaElements")
	assert.Nil(t, results[1].Verdict.Score)
}

func TestRegistryRunEmptyArtifactIsNotAnError(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(stubAudit("fields", artifact.FormFieldsName))
	results, err := r.Run(artifact.Artifacts{FormFields: []artifact.FormField{}})
	require.NoError(t, err)
	assert.False(t, results[0].Errored())
	assert.True(t, results[0].Verdict.NotApplicable)
}

func TestRegistryRunSelection(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(stubAudit("a"), stubAudit("b"))

	results, err := r.Run(artifact.Artifacts{}, "b")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	_, err = r.Run(artifact.Artifacts{}, "c")
	assert.ErrorIs(t, err, ErrUnknownAudit)
}

func TestVerdictHelpers(t *testing.T) {
	assert.True(t, Pass().Passed())
	assert.False(t, Partial(0.5, i18n.Message{ID: "x"}).Passed())
	assert.False(t, NotApplicable(nil).Passed())
	assert.Nil(t, NotApplicable(nil).Score)
}
