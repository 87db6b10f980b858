package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageFnReturnsOpaqueID(t *testing.T) {
	str := NewMessageFn("audit/test", UIStrings{
		"plain":    "Nothing to see.",
		"template": "The field '{name}' wants '{autocomplete}'.",
	})

	msg := str("template", map[string]string{"name": "ccname", "autocomplete": "cc-name"})
	assert.Equal(t, "audit/test | template", msg.ID)
	assert.Equal(t, "ccname", msg.Values["name"])
	assert.Equal(t, "The field 'ccname' wants 'cc-name'.", Format(msg))

	plain := str("plain", nil)
	assert.Nil(t, plain.Values)
	assert.Equal(t, "Nothing to see.", Format(plain))
}

func TestMessageFnCopiesValues(t *testing.T) {
	str := NewMessageFn("audit/copy", UIStrings{"k": "{v}"})
	values := map[string]string{"v": "one"}
	msg := str("k", values)
	values["v"] = "two"
	assert.Equal(t, "one", Format(msg))
}

func TestMessageFnPanicsOnUnknownKey(t *testing.T) {
	str := NewMessageFn("audit/panic", UIStrings{"k": "v"})
	assert.Panics(t, func() { str("missing", nil) })
}

func TestFormatUnknownID(t *testing.T) {
	assert.Equal(t, "nowhere | nothing", Format(Message{ID: "nowhere | nothing"}))
}
