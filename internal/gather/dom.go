package gather

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/adityalohuni/formaudit/internal/artifact"
)

// Input types the DOM reports as-is; anything else reads back as "text".
var knownInputTypes = map[string]bool{
	"button": true, "checkbox": true, "color": true, "date": true,
	"datetime-local": true, "email": true, "file": true, "hidden": true,
	"image": true, "month": true, "number": true, "password": true,
	"radio": true, "range": true, "reset": true, "search": true,
	"submit": true, "tel": true, "text": true, "time": true, "url": true,
	"week": true,
}

// CollectFormFields is the in-process form-field procedure. It mirrors the
// property reads the script version performs in a browser.
func CollectFormFields(doc *html.Node) []artifact.FormField {
	fields := []artifact.FormField{}
	for _, n := range elementsInDocument(doc, isFormControl) {
		tag := strings.ToLower(n.Data)
		inputType := controlType(tag, n)
		if tag == "input" && artifact.IsIgnoredInputType(inputType) {
			continue
		}
		field := artifact.FormField{
			ID:           attr(n, "id"),
			Name:         attr(n, "name"),
			ElementType:  tag,
			InputType:    inputType,
			Autocomplete: normalizeAutocomplete(attr(n, "autocomplete")),
		}
		if tag != "select" {
			field.Placeholder = attr(n, "placeholder")
		}
		if form := closest(n, "form"); form != nil {
			path := nodePath(form)
			field.FormPath = &path
		}
		fields = append(fields, field)
	}
	return fields
}

// CollectMetaElements is the in-process meta-element procedure.
//
// The charset case only triggers when charset is the element's first
// attribute in source order, same as the script version. A meta with no
// attributes at all is treated as a plain named meta.
func CollectMetaElements(doc *html.Node) []artifact.MetaElement {
	metas := []artifact.MetaElement{}
	for _, n := range elementsInDocument(doc, isHeadMeta) {
		var name, content string
		if equiv := attr(n, "http-equiv"); equiv != "" {
			name = strings.ToLower(equiv)
			content = attr(n, "content")
		} else if len(n.Attr) > 0 && n.Attr[0].Key == "charset" {
			name = "charset"
			content = n.Attr[0].Val
			if content == "" {
				content = attr(n, "content")
			}
		} else {
			name = strings.ToLower(attr(n, "name"))
			content = attr(n, "content")
		}
		meta := artifact.MetaElement{Name: name, Content: content}
		if v, ok := lookupAttr(n, "property"); ok {
			meta.Property = &v
		}
		metas = append(metas, meta)
	}
	return metas
}

func isFormControl(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "input", "select", "textarea":
		return true
	default:
		return false
	}
}

func isHeadMeta(n *html.Node) bool {
	return strings.EqualFold(n.Data, "meta") && closest(n, "head") != nil
}

// elementsInDocument returns matching elements in document order. Template
// contents are inert and are not part of the document.
func elementsInDocument(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if match(n) {
				out = append(out, n)
			}
			if strings.EqualFold(n.Data, "template") {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func controlType(tag string, n *html.Node) string {
	switch tag {
	case "select":
		if _, multiple := lookupAttr(n, "multiple"); multiple {
			return "select-multiple"
		}
		return "select-one"
	case "textarea":
		return "textarea"
	}
	t := strings.ToLower(strings.TrimSpace(attr(n, "type")))
	if !knownInputTypes[t] {
		return "text"
	}
	return t
}

func normalizeAutocomplete(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}

// closest finds the nearest ancestor element with the given tag.
func closest(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, tag) {
			return p
		}
	}
	return nil
}

// nodePath renders "index,NODENAME" pairs from the root element down to n.
// Whitespace-only text siblings do not count toward an index.
func nodePath(n *html.Node) string {
	var parts []string
	for node := n; node != nil && node.Parent != nil; node = node.Parent {
		parts = append(parts, strconv.Itoa(nodeIndex(node))+","+nodeName(node))
	}
	slices.Reverse(parts)
	return strings.Join(parts, ",")
}

func nodeIndex(n *html.Node) int {
	index := 0
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.TextNode && strings.TrimSpace(prev.Data) == "" {
			continue
		}
		index++
	}
	return index
}

func nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		if n.Namespace == "" {
			return strings.ToUpper(n.Data)
		}
		return n.Data
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DoctypeNode:
		return n.Data
	default:
		return "#document"
	}
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
