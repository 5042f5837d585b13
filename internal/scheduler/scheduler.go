package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aipilotbyjd/lnkflow-core/internal/breaker"
	"github.com/aipilotbyjd/lnkflow-core/internal/credit"
	"github.com/aipilotbyjd/lnkflow-core/internal/dag"
	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
	"github.com/aipilotbyjd/lnkflow-core/internal/platform/apierr"
	"github.com/aipilotbyjd/lnkflow-core/internal/platform/logging"
	"github.com/aipilotbyjd/lnkflow-core/internal/reliability"
)

// Scheduler runs one workflow execution's DAG to completion: a fixed
// worker pool executes ready nodes, a single coordinator goroutine (Run
// itself) owns all state mutation, conditional-branch gating, retry
// scheduling, and terminal status assignment. Grounded on
// internal/worker/processor/{processor,parallel,context,cancellation}.go
// for the worker-pool/RuntimeContext shape, departing from the teacher's
// level-barrier executeParallel so reconvergent conditional branches skip
// consistently (see countSatisfiedEdges).
type Scheduler struct {
	Concurrency     int
	MaxAttempts     int
	BackoffBase     time.Duration
	MaxBackoff      time.Duration
	NodeTimeout     time.Duration
	WorkflowTimeout time.Duration
	CancelGrace     time.Duration

	Executor    NodeExecutor
	Credit      credit.Meter
	Reliability reliability.Ingester
	Breakers    *breaker.Manager
}

type event struct {
	nodeID  string
	attempt int
	result  *NodeResult
	err     error
}

// Run drives graph to a terminal Outcome for execution, seeded with
// trigger as the synthetic input of every entry node.
func (s *Scheduler) Run(ctx context.Context, graph *dag.Graph, execution *domain.Execution, trigger domain.JSON) (*Outcome, error) {
	log := logging.WithExecutionID(execution.ID.String())

	nodeIDs := make([]string, 0, len(graph.Nodes))
	for id := range graph.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	state := newExecutionState(nodeIDs)

	workflowCtx := ctx
	var cancelWorkflow context.CancelFunc
	if s.WorkflowTimeout > 0 {
		workflowCtx, cancelWorkflow = context.WithTimeout(ctx, s.WorkflowTimeout)
		defer cancelWorkflow()
	}

	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	bufSize := concurrency * 4
	if bufSize < len(graph.Nodes) {
		bufSize = len(graph.Nodes)
	}
	if bufSize == 0 {
		bufSize = 1
	}

	taskCh := make(chan NodeTask, bufSize)
	eventCh := make(chan event, bufSize)
	retryCh := make(chan string, bufSize)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go s.worker(workflowCtx, taskCh, eventCh, &wg)
	}

	var mu sync.Mutex // guards attempts
	var attempts []domain.ConnectorCallAttempt
	var active atomic.Int64

	mergeInputs := func(id string) map[string]domain.JSON {
		in := make(map[string]domain.JSON)
		if len(graph.Reverse[id]) == 0 {
			in["trigger"] = trigger
			return in
		}
		for _, e := range graph.Reverse[id] {
			if out, ok := state.outputOf(e.Source); ok {
				in[e.Source] = out
			}
		}
		return in
	}

	// rawDispatch sends id's current-attempt task to the worker pool
	// without touching the in-flight counter, so it can be shared between
	// a brand new dispatch (which does bump the counter) and a
	// backoff-delayed retry of an already-counted node (which must not).
	rawDispatch := func(id string) {
		attempt := state.attemptOf(id)
		task := NodeTask{
			NodeID:   id,
			NodeType: graph.Nodes[id].Type,
			Input:    mergeInputs(id),
			Config:   graph.Nodes[id].Config,
			Attempt:  attempt,
		}
		state.markScheduled(id)
		state.markRunning(id, attempt)
		select {
		case taskCh <- task:
		case <-workflowCtx.Done():
		}
	}

	runDispatchPass := func() {
		changed := true
		for changed {
			changed = false
			for _, id := range graph.Order {
				if state.isScheduled(id) || state.resolved(id) || state.isFailed(id) {
					continue
				}
				if !allReverseResolved(state, graph, id) {
					continue
				}
				if len(graph.Reverse[id]) == 0 || countSatisfiedEdges(state, graph, id) > 0 {
					active.Add(1)
					rawDispatch(id)
					changed = true
					continue
				}
				if state.markSkipped(id) {
					changed = true
				}
			}
		}
	}

	// handleEvent applies one worker result to state and reports whether
	// the node is still in flight (true for a scheduled retry, which keeps
	// active's count unchanged until the retry itself resolves).
	handleEvent := func(ev event) (stillInFlight bool) {
		if ev.err == nil {
			state.markCompleted(ev.nodeID, ev.result.Output)
			if s.Credit != nil {
				if cost, ok := creditCost(ev.result); ok && cost > 0 {
					if err := s.Credit.Increment(context.Background(), execution.WorkspaceID, cost, domain.TxnUsage, &execution.ID); err != nil {
						log.Warn().Err(err).Str("node_id", ev.nodeID).Msg("credit increment failed")
					}
				}
			}
			if att, ok := connectorAttempt(ev.result); ok {
				att.ExecutionID = execution.ID
				att.WorkspaceID = execution.WorkspaceID
				att.WorkflowID = execution.WorkflowID
				att.AttemptNo = ev.attempt
				mu.Lock()
				attempts = append(attempts, att)
				mu.Unlock()
			}
			return false
		}

		if apierr.Retryable(ev.err) && ev.attempt < s.maxAttempts() {
			delay := backoffDelay(s.backoffBase(), ev.attempt, s.maxBackoff())
			state.bumpAttempt(ev.nodeID, ev.attempt+1)
			time.AfterFunc(delay, func() {
				select {
				case retryCh <- ev.nodeID:
				case <-workflowCtx.Done():
				}
			})
			return true
		}

		state.markFailed(ev.nodeID, ev.err.Error())
		if att, ok := connectorAttemptFromError(ev.nodeID, ev.attempt, ev.err); ok {
			att.ExecutionID = execution.ID
			att.WorkspaceID = execution.WorkspaceID
			att.WorkflowID = execution.WorkflowID
			mu.Lock()
			attempts = append(attempts, att)
			mu.Unlock()
		}
		cascadeSkip(state, graph, ev.nodeID)
		return false
	}

	runDispatchPass()

	var finalStatus string
	deadline := false

loop:
	for {
		if allExitNodesResolved(state, graph) {
			finalStatus = terminalStatus(state)
			break loop
		}
		if active.Load() == 0 {
			// Nothing in flight and the frontier produced nothing new: the
			// graph cannot reach its exit nodes. Validated DAGs should
			// never hit this, but surface it rather than hang forever.
			finalStatus = domain.ExecutionFailed
			break loop
		}

		select {
		case <-workflowCtx.Done():
			deadline = true
			break loop
		case ev := <-eventCh:
			if !handleEvent(ev) {
				active.Add(-1)
			}
			runDispatchPass()
		case id := <-retryCh:
			rawDispatch(id)
		}
	}

	if deadline {
		finalStatus = s.drainOnCancel(state, eventCh, taskCh, &wg, &active, workflowCtx)
	} else {
		close(taskCh)
		wg.Wait()
	}

	mu.Lock()
	finishedAttempts := attempts
	mu.Unlock()
	if s.Reliability != nil && len(finishedAttempts) > 0 {
		if err := s.Reliability.Ingest(context.Background(), execution, finishedAttempts); err != nil {
			log.Error().Err(err).Msg("reliability ingest failed")
		}
	}

	outputs := map[string]domain.JSON{}
	for _, id := range graph.ExitNodes {
		if out, ok := state.outputOf(id); ok {
			outputs[id] = out
		}
	}

	return &Outcome{Status: finalStatus, Outputs: outputs, Nodes: state.Snapshot()}, nil
}

func (s *Scheduler) worker(ctx context.Context, taskCh <-chan NodeTask, eventCh chan<- event, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-taskCh:
			if !ok {
				return
			}
			nodeCtx := ctx
			var cancel context.CancelFunc
			if s.NodeTimeout > 0 {
				nodeCtx, cancel = context.WithTimeout(ctx, s.NodeTimeout)
			}
			res, err := s.execute(nodeCtx, task)
			if cancel != nil {
				cancel()
			}
			select {
			case eventCh <- event{nodeID: task.NodeID, attempt: task.Attempt, result: res, err: err}:
			case <-ctx.Done():
			}
		}
	}
}

// execute runs task through the executor, optionally gated by a
// per-node-type circuit breaker so a connector already failing
// consistently stops accepting new attempts until its cooldown elapses.
func (s *Scheduler) execute(ctx context.Context, task NodeTask) (*NodeResult, error) {
	if s.Breakers == nil {
		return s.Executor.Execute(ctx, task.NodeID, task.NodeType, task.Input, task.Config)
	}
	b := s.Breakers.Get(task.NodeType)
	var res *NodeResult
	err := b.ExecuteWithContext(ctx, func(ctx context.Context) error {
		var execErr error
		res, execErr = s.Executor.Execute(ctx, task.NodeID, task.NodeType, task.Input, task.Config)
		return execErr
	})
	if errors.Is(err, breaker.ErrOpen) || errors.Is(err, breaker.ErrHalfOpenBusy) {
		return nil, apierr.Wrap(apierr.KindExecutorTransient, "CONNECTOR_CIRCUIT_OPEN", err)
	}
	return res, err
}

// drainOnCancel waits up to CancelGrace for in-flight tasks to report
// back before marking everything still outstanding as cancelled or
// timed out.
func (s *Scheduler) drainOnCancel(
	state *ExecutionState,
	eventCh chan event,
	taskCh chan NodeTask,
	wg *sync.WaitGroup,
	active *atomic.Int64,
	workflowCtx context.Context,
) string {
	grace := s.CancelGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

drain:
	for active.Load() > 0 {
		select {
		case ev := <-eventCh:
			active.Add(-1)
			if ev.err == nil {
				state.markCompleted(ev.nodeID, ev.result.Output)
			} else {
				state.markFailed(ev.nodeID, ev.err.Error())
			}
		case <-timer.C:
			break drain
		}
	}

	close(taskCh)
	wg.Wait()

	status := domain.ExecutionCancelled
	if workflowCtx.Err() == context.DeadlineExceeded {
		status = domain.ExecutionTimedOut
	}

	for id, ns := range state.Snapshot() {
		if ns.Status == domain.NodeStatusPending || ns.Status == domain.NodeStatusRunning {
			state.markFailed(id, status)
		}
	}
	return status
}

func (s *Scheduler) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return 1
	}
	return s.MaxAttempts
}

func (s *Scheduler) backoffBase() time.Duration {
	if s.BackoffBase <= 0 {
		return time.Second
	}
	return s.BackoffBase
}

func (s *Scheduler) maxBackoff() time.Duration {
	if s.MaxBackoff <= 0 {
		return 5 * time.Minute
	}
	return s.MaxBackoff
}

// backoffDelay computes base * 2^(attempt-1), capped at max.
func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func allReverseResolved(state *ExecutionState, graph *dag.Graph, id string) bool {
	for _, e := range graph.Reverse[id] {
		if !state.resolved(e.Source) {
			return false
		}
	}
	return true
}

// countSatisfiedEdges counts incoming edges whose upstream completed and,
// when the upstream produced a {"output": handle} condition verdict,
// whose handle matches the edge's declared SourceHandle.
func countSatisfiedEdges(state *ExecutionState, graph *dag.Graph, id string) int {
	n := 0
	for _, e := range graph.Reverse[id] {
		out, ok := state.outputOf(e.Source)
		if !ok {
			continue
		}
		if e.SourceHandle == "" {
			n++
			continue
		}
		if handle, ok := out["output"].(string); ok {
			if handle == e.SourceHandle {
				n++
			}
			continue
		}
		// Upstream isn't a condition node (no "output" handle key): any
		// declared SourceHandle is treated as always satisfied once the
		// upstream has completed.
		n++
	}
	return n
}

// cascadeSkip marks every node reachable from id that hasn't already
// reached a terminal state as skipped, so a failed node's downstream
// still lets the run reach completion instead of hanging forever.
func cascadeSkip(state *ExecutionState, graph *dag.Graph, id string) {
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range graph.Forward[cur] {
			if state.markSkipped(e.Target) {
				queue = append(queue, e.Target)
			}
		}
	}
}

func allExitNodesResolved(state *ExecutionState, graph *dag.Graph) bool {
	for _, id := range graph.ExitNodes {
		if !state.resolved(id) && !state.isFailed(id) {
			return false
		}
	}
	return true
}

func terminalStatus(state *ExecutionState) string {
	if state.hasFailures() {
		return domain.ExecutionFailed
	}
	return domain.ExecutionCompleted
}

func creditCost(res *NodeResult) (float64, bool) {
	if res == nil || res.Metrics == nil {
		return 0, false
	}
	cost, ok := res.Metrics["credit_cost"]
	return cost, ok
}

func connectorAttempt(res *NodeResult) (domain.ConnectorCallAttempt, bool) {
	if res == nil {
		return domain.ConnectorCallAttempt{}, false
	}
	key, ok := res.Output["_connector_key"].(string)
	if !ok {
		return domain.ConnectorCallAttempt{}, false
	}
	op, _ := res.Output["_connector_operation"].(string)
	return domain.ConnectorCallAttempt{
		ConnectorKey:       key,
		ConnectorOperation: op,
		Status:             domain.AttemptSuccess,
		HappenedAt:         time.Now(),
	}, true
}

func connectorAttemptFromError(nodeID string, attempt int, err error) (domain.ConnectorCallAttempt, bool) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		return domain.ConnectorCallAttempt{}, false
	}
	status := domain.AttemptFailure
	if apiErr.Kind == apierr.KindTimeout {
		status = domain.AttemptTimeout
	}
	return domain.ConnectorCallAttempt{
		ConnectorKey: nodeID,
		AttemptNo:    attempt,
		IsRetry:      attempt > 1,
		Status:       status,
		ErrorCode:    apiErr.Code,
		ErrorMessage: apiErr.Error(),
		HappenedAt:   time.Now(),
	}, true
}
