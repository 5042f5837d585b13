// Package replay implements the deterministic replay pack from spec
// §4.8: per-execution snapshot capture, fixture merge, and a
// fixture-intercepting NodeExecutor wrapper that lets a rerun reproduce
// an execution without calling out to the real world. No direct teacher
// analogue exists for snapshot/fixture capture, so this is grounded on
// internal/worker/events/publisher.go's typed-record style and
// internal/pkg/cache/execution.go's hashInput (sha256 of marshaled
// JSON), reused directly for request_fingerprint.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/aipilotbyjd/lnkflow-core/internal/dispatch"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
	"github.com/aipilotbyjd/lnkflow-core/internal/platform/apierr"
	"github.com/aipilotbyjd/lnkflow-core/internal/scheduler"
)

// Pack modes, mirrored on domain.ExecutionReplayPack.Mode.
const (
	ModeCapture = "capture"
	ModeReplay  = "replay"
)

// Store is the persistence collaborator behind one pack per execution.
type Store interface {
	GetByExecutionID(ctx context.Context, executionID uuid.UUID) (*domain.ExecutionReplayPack, error)
	Upsert(ctx context.Context, pack *domain.ExecutionReplayPack) error
}

// ExecutionStore is the narrow Execution read/write collaborator Rerun
// needs: read the source run, persist the child run it spawns.
type ExecutionStore interface {
	GetExecution(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	SaveExecution(ctx context.Context, execution *domain.Execution) error
}

// Service implements capture, fixture append, and deterministic rerun.
type Service struct {
	Store      Store
	Executions ExecutionStore
	Queue      dispatch.Enqueuer
}

func NewService(store Store, executions ExecutionStore, queue dispatch.Enqueuer) *Service {
	return &Service{Store: store, Executions: executions, Queue: queue}
}

// Fingerprint computes hex(sha256(canonical_json(method, url,
// normalised_headers, body))) per spec §6's replay pack fixture
// contract, reusing the teacher's hashInput shape (sha256 of a
// json.Marshal'd value) generalized from a single JSON blob to this
// four-part request shape.
func Fingerprint(method, url string, headers map[string]string, body []byte) string {
	payload := struct {
		Method  string            `json:"method"`
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
	}{Method: method, URL: url, Headers: headers, Body: string(body)}

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func seedFromExecutionID(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}

// Capture upserts the replay pack keyed by execution.ID, per spec §4.8.
func (s *Service) Capture(ctx context.Context, execution *domain.Execution, mode string, sourceExecutionID *uuid.UUID, trigger domain.JSON, fixtures []domain.ReplayFixture) (*domain.ExecutionReplayPack, error) {
	pack := &domain.ExecutionReplayPack{
		ExecutionID:       execution.ID,
		WorkspaceID:       execution.WorkspaceID,
		WorkflowID:        execution.WorkflowID,
		SourceExecutionID: sourceExecutionID,
		Mode:              mode,
		DeterministicSeed: seedFromExecutionID(execution.ID),
		TriggerSnapshot:   trigger,
		Fixtures:          fixtures,
	}
	if err := s.Store.Upsert(ctx, pack); err != nil {
		return nil, err
	}
	return pack, nil
}

// AppendFixtures merges newFixtures into the pack's existing fixture set
// keyed by RequestFingerprint, latest write winning, per spec §4.8.
func (s *Service) AppendFixtures(ctx context.Context, executionID uuid.UUID, newFixtures []domain.ReplayFixture) error {
	pack, err := s.Store.GetByExecutionID(ctx, executionID)
	if err != nil {
		return err
	}
	if pack == nil {
		return apierr.New(apierr.KindNotFound, "REPLAY_PACK_NOT_FOUND", "no replay pack for this execution")
	}

	merged := make(map[string]domain.ReplayFixture, len(pack.Fixtures)+len(newFixtures))
	var order []string
	for _, f := range pack.Fixtures {
		if _, seen := merged[f.RequestFingerprint]; !seen {
			order = append(order, f.RequestFingerprint)
		}
		merged[f.RequestFingerprint] = f
	}
	for _, f := range newFixtures {
		if _, seen := merged[f.RequestFingerprint]; !seen {
			order = append(order, f.RequestFingerprint)
		}
		merged[f.RequestFingerprint] = f
	}

	pack.Fixtures = make([]domain.ReplayFixture, 0, len(order))
	for _, fp := range order {
		pack.Fixtures = append(pack.Fixtures, merged[fp])
	}
	return s.Store.Upsert(ctx, pack)
}

// RerunOptions configures a deterministic rerun of a prior execution.
type RerunOptions struct {
	RequestedBy     *uuid.UUID
	OverrideTrigger domain.JSON // nil keeps the source execution's trigger data
	Priority        string      // empty defaults to dispatch.PriorityDefault
}

// Rerun implements spec §4.8's rerun transaction: create a child
// Execution (mode=replay, is_deterministic_replay=true,
// parent_execution_id=source.id), capture a new pack in replay mode
// carrying the source's fixtures, then enqueue it through C7's queue
// with a deterministic_context the worker uses to intercept matched
// requests instead of calling out.
func (s *Service) Rerun(ctx context.Context, sourceExecutionID uuid.UUID, opts RerunOptions) (*domain.Execution, error) {
	source, err := s.Executions.GetExecution(ctx, sourceExecutionID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, apierr.New(apierr.KindNotFound, "EXECUTION_NOT_FOUND", "source execution not found")
	}

	sourcePack, err := s.Store.GetByExecutionID(ctx, sourceExecutionID)
	if err != nil {
		return nil, err
	}

	trigger := source.TriggerData
	if opts.OverrideTrigger != nil {
		trigger = opts.OverrideTrigger
	}

	child := &domain.Execution{
		ID:                    uuid.New(),
		WorkflowID:            source.WorkflowID,
		WorkspaceID:           source.WorkspaceID,
		Status:                domain.ExecutionPending,
		Mode:                  domain.ModeReplay,
		TriggeredBy:           opts.RequestedBy,
		TriggerData:           trigger,
		Attempt:               1,
		MaxAttempts:           1,
		ParentExecutionID:     &source.ID,
		ReplayOfExecutionID:   &source.ID,
		IsDeterministicReplay: true,
	}
	if err := s.Executions.SaveExecution(ctx, child); err != nil {
		return nil, err
	}

	var fixtures []domain.ReplayFixture
	if sourcePack != nil {
		fixtures = sourcePack.Fixtures
	}
	pack, err := s.Capture(ctx, child, ModeReplay, &source.ID, trigger, fixtures)
	if err != nil {
		return nil, err
	}

	if s.Queue != nil {
		priority := opts.Priority
		if priority == "" {
			priority = dispatch.PriorityDefault
		}
		callbackToken, err := dispatch.NewCallbackToken()
		if err != nil {
			return nil, err
		}
		deterministicContext := domain.JSON{
			"mode":     ModeReplay,
			"seed":     pack.DeterministicSeed,
			"fixtures": pack.Fixtures,
		}
		if _, err := s.Queue.Enqueue(priority, dispatch.JobPayload{
			WorkflowID:    child.WorkflowID,
			ExecutionID:   child.ID,
			WorkspaceID:   child.WorkspaceID,
			TriggerData:   trigger,
			ReplayContext: deterministicContext,
			CallbackToken: callbackToken,
		}); err != nil {
			return nil, err
		}
	}

	return child, nil
}

// FixtureExecutor wraps a live NodeExecutor and intercepts calls whose
// outbound request matches a captured fixture's RequestFingerprint,
// falling through to the live executor when unmatched unless Strict is
// set, in which case an unmatched lookup is a hard failure. Fingerprint
// extraction is the caller's job: NodeExecutor implementations that make
// outbound calls are expected to compute Fingerprint() themselves and
// pass it through config under "_request_fingerprint" so this wrapper
// can intercept without understanding any specific connector's request
// shape.
type FixtureExecutor struct {
	Live     scheduler.NodeExecutor
	Fixtures map[string]domain.JSON // request_fingerprint -> response
	Strict   bool
}

// NewFixtureExecutor indexes pack's fixtures by RequestFingerprint for
// O(1) lookup during execution.
func NewFixtureExecutor(live scheduler.NodeExecutor, fixtures []domain.ReplayFixture, strict bool) *FixtureExecutor {
	indexed := make(map[string]domain.JSON, len(fixtures))
	for _, f := range fixtures {
		indexed[f.RequestFingerprint] = f.Response
	}
	return &FixtureExecutor{Live: live, Fixtures: indexed, Strict: strict}
}

var errFixtureMissing = apierr.New(apierr.KindValidation, apierr.CodeFixtureMissing, "strict replay found no fixture for this request")

func (f *FixtureExecutor) Execute(ctx context.Context, nodeID, nodeType string, input map[string]domain.JSON, config domain.JSON) (*scheduler.NodeResult, error) {
	if fp, ok := config["_request_fingerprint"].(string); ok {
		if response, hit := f.Fixtures[fp]; hit {
			return &scheduler.NodeResult{Output: response}, nil
		}
		if f.Strict {
			return nil, errFixtureMissing
		}
	}
	return f.Live.Execute(ctx, nodeID, nodeType, input, config)
}
