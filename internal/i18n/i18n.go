// Package i18n produces opaque message identifiers for user-facing strings.
//
// Audits never build display text themselves. They return a Message that
// names a template and carries its substitution values; whoever renders the
// report decides how (and in which locale) to turn it into text. Format is
// the English fallback used by the bundled CLI and TUI.
package i18n

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// UIStrings maps template keys to English templates with {placeholder} tokens.
type UIStrings map[string]string

// Message identifies a template instance. ID is "<file> | <key>".
type Message struct {
	ID     string            `json:"i18nId" yaml:"i18nId"`
	Values map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
}

// MessageFn builds a Message for one of the templates registered with it.
type MessageFn func(key string, values map[string]string) Message

var (
	mu      sync.RWMutex
	catalog = map[string]string{}
)

// NewMessageFn registers strings under file and returns a constructor for
// their messages. Asking for an unregistered key panics: it is a programming
// error, not a runtime condition.
func NewMessageFn(file string, strs UIStrings) MessageFn {
	mu.Lock()
	for key, tmpl := range strs {
		catalog[messageID(file, key)] = tmpl
	}
	mu.Unlock()

	return func(key string, values map[string]string) Message {
		if _, ok := strs[key]; !ok {
			panic(fmt.Sprintf("i18n: %s has no string %q", file, key))
		}
		msg := Message{ID: messageID(file, key)}
		if len(values) > 0 {
			msg.Values = make(map[string]string, len(values))
			for k, v := range values {
				msg.Values[k] = v
			}
		}
		return msg
	}
}

func messageID(file, key string) string {
	return file + " | " + key
}

// Format renders msg in English. Unknown ids render as the id itself.
func Format(msg Message) string {
	mu.RLock()
	tmpl, ok := catalog[msg.ID]
	mu.RUnlock()
	if !ok {
		return msg.ID
	}
	if len(msg.Values) == 0 {
		return tmpl
	}
	keys := make([]string, 0, len(msg.Values))
	for k := range msg.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", msg.Values[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// String returns the opaque id.
func (m Message) String() string {
	return m.ID
}
