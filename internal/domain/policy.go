package domain

import "github.com/google/uuid"

// WorkspacePolicy gates which node types and AI models a workspace may
// use, and caps estimated execution cost and AI token usage.
type WorkspacePolicy struct {
	WorkspaceID      uuid.UUID
	Enabled          bool
	AllowedNodeTypes []string
	BlockedNodeTypes []string
	AllowedAIModels  []string
	BlockedAIModels  []string
	MaxExecutionCostUSD *float64
	MaxAITokens         *int
	RedactionRules      []string
}

// Violation is one policy breach found while scanning a workflow's nodes.
type Violation struct {
	Code    string
	NodeID  string
	Message string
}
