package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/lightkeeperhq/guardrails/internal/audit"
	"github.com/lightkeeperhq/guardrails/internal/cache"
	"github.com/lightkeeperhq/guardrails/internal/guardrails"
	"github.com/lightkeeperhq/guardrails/internal/logger"
	"go.uber.org/zap"
)

// Fixed user-facing refusal messages. These are returned instead of an
// answer when the guardrails mark content unsafe; the LLM is never
// called in that case.
const (
	RefusalUnsafeQuestion = "I can't help with that question because it appears to contain sensitive personal or credential data. Please remove it and ask again."

	RefusalUnsafeTranscript = "This meeting's notes contain sensitive information that can't be shared with the assistant. Please redact the transcript and try again."
)

// Scan modes keyed into the verdict cache. Questions and history run the
// base detector table; transcripts run extra detectors, so their verdicts
// are cached separately even for identical text.
const (
	scanModeBase       = "base"
	scanModeTranscript = "transcript"
)

// Request is an incoming chat request.
type Request struct {
	Question   string    `json:"question"`
	Transcript string    `json:"transcript,omitempty"`
	History    []Message `json:"history,omitempty"`
}

// Response is the pipeline's outcome: either an answer, or a refusal
// with the policy reason (reasons carry only categories and
// percentages, never matched values).
type Response struct {
	Answer         string `json:"answer,omitempty"`
	Refused        bool   `json:"refused"`
	RefusalMessage string `json:"refusal_message,omitempty"`
	Reason         string `json:"reason,omitempty"`
	DroppedHistory int    `json:"dropped_history,omitempty"`
	Violations     int    `json:"violations"`
}

// LabeledResult pairs a scan result with the context label it was
// produced under, for auditing.
type LabeledResult struct {
	Label  string
	Result guardrails.Result
}

// Prepared is a fully sanitized conversation ready for the upstream
// call, together with the scan results needed for auditing.
type Prepared struct {
	Question       string
	Transcript     string
	History        []Message
	DroppedHistory int
	Results        []LabeledResult
}

// Refusal indicates the pipeline declined to forward content.
type Refusal struct {
	Message string
	Reason  string
}

// Pipeline gates all chat traffic through the sanitizer before the
// upstream LLM sees it. Verdicts and audit store are optional; when nil
// the pipeline simply scans every time and skips persistence.
type Pipeline struct {
	sanitizer *guardrails.Sanitizer
	completer Completer
	verdicts  *cache.VerdictCache
	audit     *audit.Store
	logger    *logger.Logger
}

// NewPipeline creates a chat pipeline
func NewPipeline(sanitizer *guardrails.Sanitizer, completer Completer, verdicts *cache.VerdictCache, auditStore *audit.Store, log *logger.Logger) *Pipeline {
	return &Pipeline{
		sanitizer: sanitizer,
		completer: completer,
		verdicts:  verdicts,
		audit:     auditStore,
		logger:    log,
	}
}

// Prepare sanitizes every piece of an incoming request. It returns a
// refusal when the question or transcript is unsafe; unsafe history
// messages are dropped rather than failing the whole request. The
// returned Prepared always carries the scan results gathered so far,
// even alongside a refusal, so callers can audit them.
func (p *Pipeline) Prepare(ctx context.Context, req Request) (*Prepared, *Refusal) {
	prepared := &Prepared{}

	questionResult := p.sanitizer.Sanitize(req.Question, "chat_question")
	prepared.Results = append(prepared.Results, LabeledResult{Label: "chat_question", Result: questionResult})
	if verdict := p.evaluate(ctx, scanModeBase, req.Question, questionResult); !verdict.Safe {
		p.logger.Info("Chat question refused",
			zap.String("reason", verdict.Reason))
		return prepared, &Refusal{Message: RefusalUnsafeQuestion, Reason: verdict.Reason}
	}
	prepared.Question = questionResult.SanitizedText

	if req.Transcript != "" {
		transcriptResult := p.sanitizer.SanitizeTranscript(req.Transcript)
		prepared.Results = append(prepared.Results, LabeledResult{Label: "meeting_transcript", Result: transcriptResult})
		if verdict := p.evaluate(ctx, scanModeTranscript, req.Transcript, transcriptResult); !verdict.Safe {
			p.logger.Info("Meeting transcript refused",
				zap.String("reason", verdict.Reason))
			return prepared, &Refusal{Message: RefusalUnsafeTranscript, Reason: verdict.Reason}
		}
		prepared.Transcript = transcriptResult.SanitizedText
	}

	for _, msg := range req.History {
		result := p.sanitizer.Sanitize(msg.Content, "chat_history")
		prepared.Results = append(prepared.Results, LabeledResult{Label: "chat_history", Result: result})
		if verdict := p.evaluate(ctx, scanModeBase, msg.Content, result); !verdict.Safe {
			prepared.DroppedHistory++
			continue
		}
		prepared.History = append(prepared.History, Message{
			Role:    msg.Role,
			Content: result.SanitizedText,
		})
	}

	if prepared.DroppedHistory > 0 {
		p.logger.Info("Unsafe history messages dropped",
			zap.Int("dropped", prepared.DroppedHistory),
			zap.Int("forwarded", len(prepared.History)),
		)
	}

	return prepared, nil
}

// Answer runs the full pipeline: sanitize, gate, and (when everything
// is safe) forward the sanitized conversation upstream.
func (p *Pipeline) Answer(ctx context.Context, req Request) (Response, error) {
	prepared, refusal := p.Prepare(ctx, req)

	resp := Response{}
	if prepared != nil {
		for _, r := range prepared.Results {
			resp.Violations += len(r.Result.Violations)
		}
		p.recordResults(prepared.Results)
	}

	if refusal != nil {
		resp.Refused = true
		resp.RefusalMessage = refusal.Message
		resp.Reason = refusal.Reason
		return resp, nil
	}

	resp.DroppedHistory = prepared.DroppedHistory

	messages := make([]Message, 0, len(prepared.History)+2)
	if prepared.Transcript != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: "Meeting transcript:\n" + prepared.Transcript,
		})
	}
	messages = append(messages, prepared.History...)
	messages = append(messages, Message{Role: "user", Content: prepared.Question})

	answer, err := p.completer.Complete(ctx, messages)
	if err != nil {
		return resp, fmt.Errorf("completion failed: %w", err)
	}

	resp.Answer = answer
	return resp, nil
}

// evaluate applies the safety policy, consulting the verdict cache
// first. Cache entries hold only the verdict and aggregate counts, keyed
// by scan mode and content hash.
func (p *Pipeline) evaluate(ctx context.Context, mode, original string, result guardrails.Result) guardrails.Verdict {
	if p.verdicts != nil && original != "" {
		if cached := p.verdicts.Get(ctx, mode, original); cached != nil {
			return guardrails.Verdict{Safe: cached.Safe, Reason: cached.Reason}
		}
	}

	verdict := p.sanitizer.EvaluateSafety(result)

	if p.verdicts != nil && original != "" {
		categories := make([]string, 0)
		for _, c := range result.Categories() {
			categories = append(categories, string(c))
		}
		p.verdicts.Store(ctx, mode, original, cache.CachedVerdict{
			Safe:           verdict.Safe,
			Reason:         verdict.Reason,
			ViolationCount: len(result.Violations),
			Categories:     categories,
		})
	}

	return verdict
}

// recordResults persists aggregate violation stats in the background;
// audit failures never affect the request.
func (p *Pipeline) recordResults(results []LabeledResult) {
	if p.audit == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for _, r := range results {
			if err := p.audit.RecordResult(ctx, r.Label, r.Result); err != nil {
				p.logger.Warn("Failed to record violation aggregates", zap.Error(err))
			}
		}
	}()
}
