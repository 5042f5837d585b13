// Package contract implements the static edge-compatibility compiler
// from spec §4.4: given a node catalog and a workflow's nodes/edges, it
// resolves each edge's schema pair, flags type mismatches and missing
// required fields, and produces a content-addressed snapshot that is
// reused verbatim when the graph hash has not changed.
//
// No direct teacher analogue exists — the teacher validates workflow
// structure only (internal/pkg/validator/workflow.go), never edge-level
// schema compatibility — so this package is grounded on that validator's
// error-taxonomy style (field/node/code/message) generalized to edges.
package contract

import "github.com/aipilotbyjd/lnkflow-core/internal/domain"

// NodeSpec is a catalog entry's schema-relevant fields.
type NodeSpec struct {
	Type         string
	InputSchema  domain.JSON
	OutputSchema domain.JSON
}

// Catalog resolves a node type to its schema definition.
type Catalog interface {
	Lookup(nodeType string) (*NodeSpec, bool)
}

// MapCatalog is a Catalog backed by a plain map, sufficient for tests and
// for catalogs loaded wholesale at startup.
type MapCatalog map[string]*NodeSpec

func (m MapCatalog) Lookup(nodeType string) (*NodeSpec, bool) {
	spec, ok := m[nodeType]
	return spec, ok
}
