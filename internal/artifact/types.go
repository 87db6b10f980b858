package artifact

import (
	"fmt"
	"time"
)

// Name is the wire key an artifact list is stored and requested under.
type Name string

const (
	FormFieldsName   Name = "FormFields"
	MetaElementsName Name = "MetaElements"
)

// IgnoredInputTypes are input types that never produce a FormField.
var IgnoredInputTypes = [...]string{"hidden", "button", "submit", "checkbox", "radio"}

// IsIgnoredInputType reports whether an input of type t is skipped during extraction.
func IsIgnoredInputType(t string) bool {
	for _, ignored := range IgnoredInputTypes {
		if t == ignored {
			return true
		}
	}
	return false
}

type FormField struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	ElementType  string  `json:"elementType" yaml:"elementType"`
	InputType    string  `json:"inputType" yaml:"inputType"`
	Autocomplete string  `json:"autocomplete" yaml:"autocomplete"`
	Placeholder  string  `json:"placeholder" yaml:"placeholder"`
	FormPath     *string `json:"formPath,omitempty" yaml:"formPath,omitempty"`
}

type MetaElement struct {
	Name     string  `json:"name" yaml:"name"`
	Content  string  `json:"content" yaml:"content"`
	Property *string `json:"property,omitempty" yaml:"property,omitempty"`
}

// Artifacts is the collection audits read from. A nil slice means the
// artifact was never gathered; an empty slice means nothing was found.
type Artifacts struct {
	FormFields   []FormField   `json:"FormFields" yaml:"FormFields"`
	MetaElements []MetaElement `json:"MetaElements" yaml:"MetaElements"`
}

// Has reports whether the named artifact was gathered.
func (a Artifacts) Has(name Name) bool {
	switch name {
	case FormFieldsName:
		return a.FormFields != nil
	case MetaElementsName:
		return a.MetaElements != nil
	default:
		return false
	}
}

// Set stores a gathered value under name. The value type must match the name.
func (a *Artifacts) Set(name Name, value any) error {
	switch name {
	case FormFieldsName:
		v, ok := value.([]FormField)
		if !ok {
			return fmt.Errorf("artifact %s: unexpected type %T", name, value)
		}
		if v == nil {
			v = []FormField{}
		}
		a.FormFields = v
	case MetaElementsName:
		v, ok := value.([]MetaElement)
		if !ok {
			return fmt.Errorf("artifact %s: unexpected type %T", name, value)
		}
		if v == nil {
			v = []MetaElement{}
		}
		a.MetaElements = v
	default:
		return fmt.Errorf("unknown artifact %q", name)
	}
	return nil
}

// Snapshot is one gathering pass over a page.
type Snapshot struct {
	ID         string    `json:"id" yaml:"id"`
	URL        string    `json:"url" yaml:"url"`
	GatheredAt time.Time `json:"gatheredAt" yaml:"gatheredAt"`
	Artifacts  Artifacts `json:"artifacts" yaml:"artifacts"`
}
