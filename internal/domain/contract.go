package domain

import "github.com/google/uuid"

// EdgeContract is the per-edge verdict produced by the contract compiler.
type EdgeContract struct {
	EdgeID             string
	Source             string
	Target             string
	SourceOutputSchema JSON
	TargetInputSchema  JSON
	Status             string // valid | warning | invalid
	Issues             []ContractIssue
}

// ContractIssue is one static-validation finding, carrying a stable code
// (see internal/platform/apierr for the canonical list).
type ContractIssue struct {
	Code     string
	Severity string // warning | error
	EdgeID   string
	Message  string
}

// WorkflowContractSnapshot is the content-addressed verdict on a
// workflow graph's static validity, reused whenever GraphHash matches.
type WorkflowContractSnapshot struct {
	WorkflowID        uuid.UUID
	WorkflowVersionID *uuid.UUID
	GraphHash         string
	Status            string
	NodeCount         int
	EdgeCount         int
	EdgeContracts     []EdgeContract
	Issues            []ContractIssue
}
