package repoconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCheckRunName is used when a mapping entry does not override it.
const DefaultCheckRunName = "Eureka CI Release Check"

// Document is the repository-workflow mapping document stored in the object
// store under the mapping key.
type Document struct {
	Repositories []Entry `json:"repositories"`
}

// Entry maps a repository pattern to the workflow that validates it.
type Entry struct {
	// Pattern is an exact repository full name ("org/repo") or a wildcard
	// pattern ("org/*"). Exact matches win over wildcard matches.
	Pattern string `json:"pattern"`

	// WorkflowRef is the workflow file dispatched for matching repositories.
	WorkflowRef string `json:"workflowRef"`

	// CheckRunName is the display name of the created check run.
	CheckRunName string `json:"checkRunName"`

	// DispatchRepo/DispatchRef override where the workflow is dispatched.
	// Empty values fall back to the service-level defaults.
	DispatchRepo string `json:"dispatchRepo,omitempty"`
	DispatchRef  string `json:"dispatchRef,omitempty"`
}

// ParseDocument decodes and validates a mapping document. Unknown fields are
// rejected so typos in the stored document surface immediately instead of
// silently disabling overrides.
func ParseDocument(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse mapping document: %w", err)
	}

	for i, entry := range doc.Repositories {
		if entry.Pattern == "" {
			return nil, fmt.Errorf("mapping document: repositories[%d].pattern is required", i)
		}
		if !strings.Contains(entry.Pattern, "/") {
			return nil, fmt.Errorf("mapping document: repositories[%d].pattern %q is not owner/name", i, entry.Pattern)
		}
		if entry.WorkflowRef == "" {
			return nil, fmt.Errorf("mapping document: repositories[%d].workflowRef is required", i)
		}
		if entry.CheckRunName == "" {
			doc.Repositories[i].CheckRunName = DefaultCheckRunName
		}
	}
	return &doc, nil
}

// Match returns the entry for a repository full name, preferring an exact
// pattern over wildcard patterns. Wildcard ties resolve in document order.
func (d *Document) Match(repoFullName string) (Entry, bool) {
	var wildcard *Entry
	for i, entry := range d.Repositories {
		if entry.Pattern == repoFullName {
			return entry, true
		}
		if wildcard == nil && wildcardMatch(entry.Pattern, repoFullName) {
			wildcard = &d.Repositories[i]
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return Entry{}, false
}

// wildcardMatch supports a single trailing "*" segment, the only form the
// mapping documents use ("org/*").
func wildcardMatch(pattern, name string) bool {
	if !strings.HasSuffix(pattern, "*") {
		return false
	}
	return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
}
