// Package bpmn validates uploaded BPMN XML against the supported element
// subset and extracts the snapshot (process key, form-schema references,
// catalog-binding placeholders) that gets persisted on a clean upload.
package bpmn

import (
	"encoding/xml"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	modelNS = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	diNS    = "http://www.omg.org/spec/BPMN/20100524/DI"
	ddDIns  = "http://www.omg.org/spec/DD/20100524/DI"
	ddDCns  = "http://www.omg.org/spec/DD/20100524/DC"
)

var allowedNonBPMNNamespaces = map[string]bool{
	diNS:   true,
	ddDIns: true,
	ddDCns: true,
}

// SupportedElements lists the BPMN 2.0 MODEL-namespace local names this
// orchestrator accepts.
var SupportedElements = map[string]bool{
	"definitions":         true,
	"process":             true,
	"startEvent":          true,
	"endEvent":            true,
	"sequenceFlow":        true,
	"exclusiveGateway":    true,
	"parallelGateway":     true,
	"userTask":            true,
	"serviceTask":         true,
	"scriptTask":          true,
	"sendTask":            true,
	"subProcess":          true,
	"incoming":            true,
	"outgoing":            true,
	"extensionElements":   true,
	"documentation":       true,
	"text":                true,
	"conditionExpression": true,
	"script":              true,
}

var unsupportedElementMessages = map[string]string{
	"boundaryEvent":                    "Boundary events are not supported.",
	"timerEventDefinition":             "Timer events are not supported.",
	"messageEventDefinition":           "Message events are not supported.",
	"signalEventDefinition":            "Signal events are not supported.",
	"multiInstanceLoopCharacteristics": "Multi-instance is not supported.",
	"compensateEventDefinition":        "Compensation is not supported.",
}

var formSchemaAttributeNames = map[string]bool{
	"formKey":   true,
	"formRef":   true,
	"formId":    true,
	"schemaRef": true,
	"schemaId":  true,
}

var catalogBindingAttributeMarkers = []string{"catalog", "capability", "binding"}

// Error is a single validation failure, ordered for deterministic output.
type Error struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FormSchemaRef records one element carrying a form/schema reference attribute.
type FormSchemaRef struct {
	ElementID   string `json:"element_id"`
	ElementType string `json:"element_type"`
	FormKey     string `json:"form_key"`
}

// CatalogBindingPlaceholder records a serviceTask's raw catalog-binding attributes.
type CatalogBindingPlaceholder struct {
	ElementID   string            `json:"element_id"`
	ElementName string            `json:"element_name"`
	ElementType string            `json:"element_type"`
	Placeholder map[string]string `json:"placeholders"`
}

// Snapshot is the extracted summary of a cleanly validated BPMN document.
type Snapshot struct {
	ProcessKey                 string                      `json:"process_key"`
	ProcessName                string                      `json:"process_name"`
	FormSchemaRefs              []FormSchemaRef             `json:"form_schema_refs"`
	CatalogBindingPlaceholders []CatalogBindingPlaceholder `json:"catalog_binding_placeholders"`
}

// element is a minimal parsed-tree node: namespace-resolved tag plus
// attributes and children, built once from the XML token stream so the
// validator can walk it multiple times (process lookup, element-kind
// check, snapshot extraction) without re-parsing.
type element struct {
	space, local string
	attrs        []xml.Attr
	children     []*element
}

func (e *element) attr(local string) (string, bool) {
	for _, a := range e.attrs {
		if localName(a.Name) == local {
			return a.Value, true
		}
	}
	return "", false
}

func localName(n xml.Name) string {
	return n.Local
}

// parse builds the element tree from xmlText. A malformed document
// returns a nil root and a non-nil error.
func parse(xmlText string) (*element, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlText))
	var root *element
	var stack []*element

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &element{space: t.Name.Space, local: t.Name.Local, attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			} else {
				root = node
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return root, nil
}

// pathEntry pairs an element with its deterministic path.
type pathEntry struct {
	el   *element
	path string
}

// walkWithPaths enumerates root and every descendant, assigning each a
// path of the form elemLocal[index-within-parent-by-local-name].child….
func walkWithPaths(root *element) []pathEntry {
	entries := []pathEntry{{el: root, path: root.local}}
	entries = append(entries, walkChildren(root, root.local)...)
	return entries
}

func walkChildren(parent *element, parentPath string) []pathEntry {
	var entries []pathEntry
	counts := map[string]int{}
	for _, child := range parent.children {
		idx := counts[child.local]
		counts[child.local] = idx + 1
		childPath := parentPath + "." + child.local + "[" + strconv.Itoa(idx) + "]"
		entries = append(entries, pathEntry{el: child, path: childPath})
		entries = append(entries, walkChildren(child, childPath)...)
	}
	return entries
}

func sortedErrors(errs []Error) []Error {
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Path != errs[j].Path {
			return errs[i].Path < errs[j].Path
		}
		if errs[i].Code != errs[j].Code {
			return errs[i].Code < errs[j].Code
		}
		return errs[i].Message < errs[j].Message
	})
	return errs
}

func collectElements(root *element, space, local string) []*element {
	var out []*element
	var walk func(*element)
	walk = func(e *element) {
		if e.space == space && e.local == local {
			out = append(out, e)
		}
		for _, c := range e.children {
			walk(c)
		}
	}
	walk(root)
	return out
}

func allElements(root *element) []*element {
	var out []*element
	var walk func(*element)
	walk = func(e *element) {
		out = append(out, e)
		for _, c := range e.children {
			walk(c)
		}
	}
	walk(root)
	return out
}

func collectFormSchemaRefs(root *element) []FormSchemaRef {
	var refs []FormSchemaRef
	for _, el := range allElements(root) {
		elementID, _ := el.attr("id")
		for _, a := range el.attrs {
			local := localName(a.Name)
			if formSchemaAttributeNames[local] && a.Value != "" {
				refs = append(refs, FormSchemaRef{
					ElementID:   elementID,
					ElementType: el.local,
					FormKey:     a.Value,
				})
			}
		}
	}
	return refs
}

func collectCatalogBindingPlaceholders(root *element) []CatalogBindingPlaceholder {
	var placeholders []CatalogBindingPlaceholder
	for _, el := range allElements(root) {
		if el.space != modelNS || el.local != "serviceTask" {
			continue
		}
		attrs := map[string]string{}
		for _, a := range el.attrs {
			local := localName(a.Name)
			lowered := strings.ToLower(local)
			for _, marker := range catalogBindingAttributeMarkers {
				if strings.Contains(lowered, marker) {
					attrs[local] = a.Value
					break
				}
			}
		}
		if len(attrs) > 0 {
			elementID, _ := el.attr("id")
			elementName, _ := el.attr("name")
			placeholders = append(placeholders, CatalogBindingPlaceholder{
				ElementID:   elementID,
				ElementName: elementName,
				ElementType: el.local,
				Placeholder: attrs,
			})
		}
	}
	return placeholders
}

// Validate parses xmlText and checks it against the supported BPMN
// element subset. On success it returns a non-nil snapshot and a nil
// error slice; on failure a nil snapshot and a sorted, non-empty error
// slice.
func Validate(xmlText string) (*Snapshot, []Error) {
	root, err := parse(xmlText)
	if err != nil || root == nil {
		return nil, sortedErrors([]Error{{Path: "", Code: "invalid_bpmn_xml", Message: "Invalid BPMN XML."}})
	}

	var errs []Error

	processElements := collectElements(root, modelNS, "process")
	var processKey, processName string
	switch len(processElements) {
	case 0:
		errs = append(errs, Error{Path: "process", Code: "missing_process_key", Message: "Process id is required."})
	case 1:
		proc := processElements[0]
		id, _ := proc.attr("id")
		processKey = strings.TrimSpace(id)
		processName, _ = proc.attr("name")
		if processKey == "" {
			errs = append(errs, Error{Path: "process", Code: "missing_process_key", Message: "Process id is required."})
		}
	default:
		errs = append(errs, Error{Path: "process", Code: "multiple_processes", Message: "Only one process is supported."})
	}

	for _, entry := range walkWithPaths(root) {
		el := entry.el
		if el.space != modelNS {
			continue
		}
		if msg, unsupported := unsupportedElementMessages[el.local]; unsupported {
			errs = append(errs, Error{Path: entry.path, Code: "unsupported_bpmn_element", Message: msg})
		} else if !SupportedElements[el.local] {
			errs = append(errs, Error{Path: entry.path, Code: "unsupported_bpmn_element", Message: "Unsupported BPMN element: " + el.local + "."})
		}

		if v, ok := el.attr("isForCompensation"); ok && strings.EqualFold(v, "true") {
			errs = append(errs, Error{Path: entry.path, Code: "unsupported_bpmn_element", Message: "Compensation is not supported."})
		}
	}

	if len(errs) > 0 {
		return nil, sortedErrors(errs)
	}

	_ = allowedNonBPMNNamespaces // foreign non-BPMN-DI/DD namespaces are ignored by construction: we only ever inspect modelNS elements above

	snapshot := &Snapshot{
		ProcessKey:                 processKey,
		ProcessName:                processName,
		FormSchemaRefs:              collectFormSchemaRefs(root),
		CatalogBindingPlaceholders: collectCatalogBindingPlaceholders(root),
	}
	return snapshot, nil
}
