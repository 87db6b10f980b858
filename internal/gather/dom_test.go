package gather

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/browser/static"
)

func parse(t *testing.T, src string) *static.Document {
	t.Helper()
	doc, err := static.ParseString(src)
	require.NoError(t, err)
	return doc
}

func strPtr(s string) *string { return &s }

func TestCollectFormFieldsSkipsIgnoredInputTypes(t *testing.T) {
	doc := parse(t, `<!doctype html><html><body>
		<input type="hidden" name="token">
		<input type="button" name="b">
		<input type="submit" name="s">
		<input type="checkbox" name="c">
		<input type="radio" name="r">
		<input type="RADIO" name="r2">
		<input type="email" name="mail">
		<select name="country"><option>a</option></select>
		<textarea name="notes"></textarea>
	</body></html>`)

	fields := CollectFormFields(doc.Root())
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		assert.False(t, artifact.IsIgnoredInputType(f.InputType), f.Name)
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"mail", "country", "notes"}, names)
}

func TestCollectFormFieldsMapsProperties(t *testing.T) {
	doc := parse(t, `<!doctype html><html><head></head><body><form id="pay">
		<input id="n" name="ccname" autocomplete="CC-Name" placeholder="Name on card">
		<input name="zip" type="weird">
		<select name="ccmonth" autocomplete="cc-exp-month" placeholder="ignored" multiple></select>
		<textarea name="addr" placeholder="Street"></textarea>
	</form></body></html>`)

	path := strPtr("1,HTML,1,BODY,0,FORM")
	want := []artifact.FormField{
		{ID: "n", Name: "ccname", ElementType: "input", InputType: "text", Autocomplete: "cc-name", Placeholder: "Name on card", FormPath: path},
		{Name: "zip", ElementType: "input", InputType: "text", FormPath: path},
		{Name: "ccmonth", ElementType: "select", InputType: "select-multiple", Autocomplete: "cc-exp-month", FormPath: path},
		{Name: "addr", ElementType: "textarea", InputType: "textarea", Placeholder: "Street", FormPath: path},
	}
	if diff := cmp.Diff(want, CollectFormFields(doc.Root())); diff != "" {
		t.Fatalf("form fields mismatch (-want +got):\n%s", diff)
	}
}

func TestFormPathPresentOnlyInsideForm(t *testing.T) {
	doc := parse(t, `<!doctype html><html><body>
		<input name="outside">
		<form><div><fieldset><input name="nested"></fieldset></div></form>
		<form><input name="second"></form>
	</body></html>`)

	fields := CollectFormFields(doc.Root())
	require.Len(t, fields, 3)
	assert.Nil(t, fields[0].FormPath)
	require.NotNil(t, fields[1].FormPath)
	require.NotNil(t, fields[2].FormPath)
	assert.Equal(t, "1,HTML,1,BODY,1,FORM", *fields[1].FormPath)
	assert.Equal(t, "1,HTML,1,BODY,2,FORM", *fields[2].FormPath)
}

func TestFormFieldsIgnoreTemplateContents(t *testing.T) {
	doc := parse(t, `<html><body><template><input name="inert"></template><input name="live"></body></html>`)
	fields := CollectFormFields(doc.Root())
	require.Len(t, fields, 1)
	assert.Equal(t, "live", fields[0].Name)
}

func TestCollectFormFieldsEmptyDocument(t *testing.T) {
	fields := CollectFormFields(parse(t, ``).Root())
	assert.NotNil(t, fields)
	assert.Empty(t, fields)
}

func TestCollectMetaElementsPrecedence(t *testing.T) {
	doc := parse(t, `<html><head>
		<meta http-equiv="Refresh" content="5">
		<meta charset="utf-8">
		<meta name="Viewport" content="width=device-width">
		<meta property="og:title" content="Checkout">
		<meta http-equiv="content-type" name="ignored" content="text/html">
	</head><body><meta name="body-meta" content="x"></body></html>`)

	want := []artifact.MetaElement{
		{Name: "refresh", Content: "5"},
		{Name: "charset", Content: "utf-8"},
		{Name: "viewport", Content: "width=device-width"},
		{Name: "", Content: "Checkout", Property: strPtr("og:title")},
		{Name: "content-type", Content: "text/html"},
	}
	if diff := cmp.Diff(want, CollectMetaElements(doc.Root())); diff != "" {
		t.Fatalf("meta elements mismatch (-want +got):\n%s", diff)
	}
}

// The charset case is positional: only a leading charset attribute counts.
// Kept as-is; it looks incidental upstream.
func TestCollectMetaElementsCharsetMustBeFirstAttribute(t *testing.T) {
	doc := parse(t, `<html><head><meta name="enc" charset="utf-8" content="c"></head></html>`)
	metas := CollectMetaElements(doc.Root())
	require.Len(t, metas, 1)
	assert.Equal(t, "enc", metas[0].Name)
	assert.Equal(t, "c", metas[0].Content)
}

func TestCollectMetaElementsEmptyCharsetFallsBackToContent(t *testing.T) {
	doc := parse(t, `<html><head><meta charset="" content="latin1"></head></html>`)
	metas := CollectMetaElements(doc.Root())
	require.Len(t, metas, 1)
	assert.Equal(t, artifact.MetaElement{Name: "charset", Content: "latin1"}, metas[0])
}

func TestCollectMetaElementsWithoutAttributes(t *testing.T) {
	doc := parse(t, `<html><head><meta></head></html>`)
	metas := CollectMetaElements(doc.Root())
	require.Len(t, metas, 1)
	assert.Equal(t, artifact.MetaElement{}, metas[0])
}
