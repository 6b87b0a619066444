package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-broker/core"
	glog "github.com/goliatone/go-logger/glog"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDAcquireTokenSilent = "broker.acquire_token_silent"

	paramClientID      = "client_id"
	paramAuthority     = "authority"
	paramHomeAccountID = "home_account_id"
	paramScopes        = "scopes"
	paramCorrelationID = "correlation_id"
	paramForceRefresh  = "force_refresh"

	dedupPolicyDrop = "drop"
)

// RetryPolicy bounds how often a failed token job is put back on the queue.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// backoff doubles the base delay per attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// SilentTokenMessage maps a silent token request to a go-job execution
// message. Only the fields a silent lookup needs are carried.
func SilentTokenMessage(req core.AcquireTokenRequest) (*job.ExecutionMessage, error) {
	req = req.Normalize()
	if err := req.Validate(core.RequestAcquireTokenSilent); err != nil {
		return nil, err
	}
	scopes := make([]any, 0, len(req.Scopes))
	for _, scope := range req.Scopes {
		scopes = append(scopes, scope)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDAcquireTokenSilent,
		ScriptPath: JobIDAcquireTokenSilent,
		Parameters: map[string]any{
			paramClientID:      req.ClientID,
			paramAuthority:     req.Authority,
			paramHomeAccountID: req.HomeAccountID,
			paramScopes:        scopes,
			paramCorrelationID: req.CorrelationID,
			paramForceRefresh:  req.ForceRefresh,
		},
		IdempotencyKey: strings.Join([]string{req.ClientID, req.HomeAccountID, req.ScopeString()}, "|"),
		DedupPolicy:    job.DeduplicationPolicy(dedupPolicyDrop),
	}, nil
}

// RequestFromMessage rebuilds the silent token request carried by msg.
func RequestFromMessage(msg *job.ExecutionMessage) (core.AcquireTokenRequest, error) {
	if msg == nil {
		return core.AcquireTokenRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDAcquireTokenSilent {
		return core.AcquireTokenRequest{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	params := msg.Parameters
	req := core.AcquireTokenRequest{
		ClientID:      stringParam(params, paramClientID),
		Authority:     stringParam(params, paramAuthority),
		HomeAccountID: stringParam(params, paramHomeAccountID),
		CorrelationID: stringParam(params, paramCorrelationID),
	}
	if force, ok := params[paramForceRefresh].(bool); ok {
		req.ForceRefresh = force
	}
	switch scopes := params[paramScopes].(type) {
	case []string:
		req.Scopes = append(req.Scopes, scopes...)
	case []any:
		for _, scope := range scopes {
			if value, ok := scope.(string); ok {
				req.Scopes = append(req.Scopes, value)
			}
		}
	case string:
		req.Scopes = strings.Fields(scopes)
	}
	req = req.Normalize()
	if err := req.Validate(core.RequestAcquireTokenSilent); err != nil {
		return core.AcquireTokenRequest{}, err
	}
	return req, nil
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

// TokenJobEnqueuer queues silent token requests for a worker.
type TokenJobEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewTokenJobEnqueuer(enqueuer queue.Enqueuer) *TokenJobEnqueuer {
	return &TokenJobEnqueuer{enqueuer: enqueuer}
}

func (e *TokenJobEnqueuer) EnqueueSilent(ctx context.Context, req core.AcquireTokenRequest) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := SilentTokenMessage(req)
	if err != nil {
		return err
	}
	return e.enqueuer.Enqueue(ctx, msg)
}

// SilentAcquirer is the client call a token job runs.
type SilentAcquirer interface {
	AcquireTokenSilent(ctx context.Context, req core.AcquireTokenRequest) (core.AuthenticationResult, error)
}

// ResultSink receives results of successful token jobs.
type ResultSink func(ctx context.Context, req core.AcquireTokenRequest, result core.AuthenticationResult)

// SilentTokenProcessor runs queued silent token jobs against the broker.
// Retryable client failures are requeued with backoff; everything else is
// dead-lettered.
type SilentTokenProcessor struct {
	acquirer SilentAcquirer
	policy   RetryPolicy
	sink     ResultSink
	logger   core.Logger
}

func NewSilentTokenProcessor(acquirer SilentAcquirer, policy RetryPolicy, logger core.Logger, sink ResultSink) *SilentTokenProcessor {
	return &SilentTokenProcessor{
		acquirer: acquirer,
		policy:   policy,
		sink:     sink,
		logger:   glog.Ensure(logger),
	}
}

// Process handles one delivery. attempt starts at 1.
func (p *SilentTokenProcessor) Process(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if p == nil || p.acquirer == nil {
		return fmt.Errorf("gojob: silent token processor is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}

	req, err := RequestFromMessage(delivery.Message())
	if err != nil {
		p.logger.Warn("token job rejected", "error", err)
		return delivery.Nack(ctx, p.policy.NormalizeAttempt(queue.NackOptions{
			DeadLetter: true,
			Reason:     "invalid token job: " + err.Error(),
		}, attempt))
	}

	result, err := p.acquirer.AcquireTokenSilent(ctx, req)
	if err == nil {
		if p.sink != nil {
			p.sink(ctx, req, result)
		}
		p.logger.Debug("token job completed", "client_id", req.ClientID, "correlation_id", req.CorrelationID)
		return delivery.Ack(ctx)
	}

	opts := queue.NackOptions{DeadLetter: true, Reason: err.Error()}
	if isRetryable(err) {
		opts = queue.NackOptions{Requeue: true, Delay: p.policy.backoff(attempt), Reason: err.Error()}
	}
	opts = p.policy.NormalizeAttempt(opts, attempt)
	p.logger.Warn("token job failed",
		"client_id", req.ClientID,
		"correlation_id", req.CorrelationID,
		"attempt", attempt,
		"requeue", opts.Requeue,
		"dead_letter", opts.DeadLetter,
		"error", err,
	)
	return delivery.Nack(ctx, opts)
}

// ProcessNext dequeues one delivery and processes it.
func (p *SilentTokenProcessor) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return p.Process(ctx, delivery, attempt)
}

func isRetryable(err error) bool {
	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return false
}

// LoggingHook reports worker lifecycle events through a glog logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("token job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("token job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("token job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("token job retry scheduled", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{"attempt", event.Attempt, "duration", event.Duration}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay)
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err)
	}
	return fields
}

var _ worker.Hook = (*LoggingHook)(nil)
