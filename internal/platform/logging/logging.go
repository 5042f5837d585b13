// Package logging wraps zerolog the way the teacher's
// internal/pkg/logger/zerolog.go does, extended with contextual helpers
// for the execution substrate's own entities.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. In development, output is a
// human-readable console writer; otherwise structured JSON to stdout.
func Init(environment string, debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if environment == "development" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(level)
}

func WithExecutionID(executionID string) zerolog.Logger {
	return log.With().Str("execution_id", executionID).Logger()
}

func WithWorkflowID(workflowID string) zerolog.Logger {
	return log.With().Str("workflow_id", workflowID).Logger()
}

func WithWorkspaceID(workspaceID string) zerolog.Logger {
	return log.With().Str("workspace_id", workspaceID).Logger()
}

func WithNodeID(nodeID string) zerolog.Logger {
	return log.With().Str("node_id", nodeID).Logger()
}

func WithConnectorKey(connectorKey string) zerolog.Logger {
	return log.With().Str("connector_key", connectorKey).Logger()
}
