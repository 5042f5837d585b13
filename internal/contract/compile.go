package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
	"github.com/aipilotbyjd/lnkflow-core/internal/platform/apierr"
)

const (
	statusValid   = "valid"
	statusWarning = "warning"
	statusInvalid = "invalid"

	severityWarning = "warning"
	severityError   = "error"
)

var defaultSchema = domain.JSON{"type": "object"}

// Compile implements spec §4.4: resolve each edge's source/target node
// from catalog, check type compatibility and required-field coverage,
// and roll the per-edge verdicts up into a WorkflowContractSnapshot.
// strict promotes "warning" issues to "invalid" edges.
func Compile(catalog Catalog, nodes []domain.WorkflowNode, edges []domain.WorkflowEdge, strict bool) (*domain.WorkflowContractSnapshot, error) {
	nodeTypes := make(map[string]string, len(nodes))
	for _, n := range nodes {
		nodeTypes[n.ID] = n.Type
	}

	snapshot := &domain.WorkflowContractSnapshot{
		NodeCount: len(nodes),
		EdgeCount: len(edges),
		GraphHash: GraphHash(nodes, edges),
	}

	anyError := false
	anyIssue := false

	for _, e := range edges {
		ec := compileEdge(catalog, nodeTypes, e, strict)
		snapshot.EdgeContracts = append(snapshot.EdgeContracts, ec)
		snapshot.Issues = append(snapshot.Issues, ec.Issues...)
		for _, issue := range ec.Issues {
			anyIssue = true
			if issue.Severity == severityError {
				anyError = true
			}
		}
	}

	switch {
	case anyError:
		snapshot.Status = statusInvalid
	case anyIssue && strict:
		snapshot.Status = statusInvalid
	case anyIssue:
		snapshot.Status = statusWarning
	default:
		snapshot.Status = statusValid
	}

	return snapshot, nil
}

func compileEdge(catalog Catalog, nodeTypes map[string]string, e domain.WorkflowEdge, strict bool) domain.EdgeContract {
	ec := domain.EdgeContract{EdgeID: e.ID, Source: e.Source, Target: e.Target}

	sourceType, sourceKnown := nodeTypes[e.Source]
	targetType, targetKnown := nodeTypes[e.Target]

	if !sourceKnown || !targetKnown {
		ec.Issues = append(ec.Issues, domain.ContractIssue{
			Code:     apierr.CodeUnknownSourcePath,
			Severity: severityWarning,
			EdgeID:   e.ID,
			Message:  "edge references a node missing from the workflow's node list",
		})
		ec.Status = edgeStatus(ec.Issues, strict)
		return ec
	}

	sourceSpec, sourceCatalogued := catalog.Lookup(sourceType)
	targetSpec, targetCatalogued := catalog.Lookup(targetType)

	ec.SourceOutputSchema = defaultSchema
	ec.TargetInputSchema = defaultSchema
	if sourceCatalogued && sourceSpec.OutputSchema != nil {
		ec.SourceOutputSchema = sourceSpec.OutputSchema
	}
	if targetCatalogued && targetSpec.InputSchema != nil {
		ec.TargetInputSchema = targetSpec.InputSchema
	}

	if !sourceCatalogued || !targetCatalogued {
		ec.Issues = append(ec.Issues, domain.ContractIssue{
			Code:     apierr.CodeUnknownSourcePath,
			Severity: severityWarning,
			EdgeID:   e.ID,
			Message:  "node type not found in catalog",
		})
		ec.Status = edgeStatus(ec.Issues, strict)
		return ec
	}

	sType := schemaType(ec.SourceOutputSchema)
	tType := schemaType(ec.TargetInputSchema)
	if sType != "any" && tType != "any" && sType != "" && tType != "" && sType != tType {
		ec.Issues = append(ec.Issues, domain.ContractIssue{
			Code:     apierr.CodeTypeMismatch,
			Severity: severityError,
			EdgeID:   e.ID,
			Message:  "source output type " + sType + " is incompatible with target input type " + tType,
		})
	}

	sourceProps := schemaProperties(ec.SourceOutputSchema)
	for _, field := range schemaRequired(ec.TargetInputSchema) {
		if _, ok := sourceProps[field]; ok {
			continue
		}
		severity := severityWarning
		if strict {
			severity = severityError
		}
		ec.Issues = append(ec.Issues, domain.ContractIssue{
			Code:     apierr.CodeMissingRequiredField,
			Severity: severity,
			EdgeID:   e.ID,
			Message:  "target requires field " + field + " not produced by source",
		})
	}

	ec.Status = edgeStatus(ec.Issues, strict)
	return ec
}

func edgeStatus(issues []domain.ContractIssue, strict bool) string {
	anyError := false
	anyIssue := len(issues) > 0
	for _, i := range issues {
		if i.Severity == severityError {
			anyError = true
		}
	}
	switch {
	case anyError:
		return statusInvalid
	case anyIssue && strict:
		return statusInvalid
	case anyIssue:
		return statusWarning
	default:
		return statusValid
	}
}

func schemaType(schema domain.JSON) string {
	if t, ok := schema["type"].(string); ok {
		return t
	}
	return ""
}

func schemaProperties(schema domain.JSON) map[string]interface{} {
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		return props
	}
	return map[string]interface{}{}
}

func schemaRequired(schema domain.JSON) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// GraphHash computes sha256(canonical_json(nodes, edges)) per spec §4.4.
// No canonical-JSON library appears anywhere in the retrieved pack, so
// canonicalization is done by hand: sort nodes/edges by id before
// marshaling, which is sufficient because encoding/json already sorts
// map keys within a single Marshal call.
func GraphHash(nodes []domain.WorkflowNode, edges []domain.WorkflowEdge) string {
	sortedNodes := make([]domain.WorkflowNode, len(nodes))
	copy(sortedNodes, nodes)
	sort.Slice(sortedNodes, func(i, j int) bool { return sortedNodes[i].ID < sortedNodes[j].ID })

	sortedEdges := make([]domain.WorkflowEdge, len(edges))
	copy(sortedEdges, edges)
	sort.Slice(sortedEdges, func(i, j int) bool { return sortedEdges[i].ID < sortedEdges[j].ID })

	payload := struct {
		Nodes []domain.WorkflowNode `json:"nodes"`
		Edges []domain.WorkflowEdge `json:"edges"`
	}{Nodes: sortedNodes, Edges: sortedEdges}

	data, err := json.Marshal(payload)
	if err != nil {
		// Marshal of these plain structs cannot fail; this guards against
		// a future field addition introducing an unmarshalable type.
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
