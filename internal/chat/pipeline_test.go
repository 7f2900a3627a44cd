package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/lightkeeperhq/guardrails/internal/config"
	"github.com/lightkeeperhq/guardrails/internal/guardrails"
	"github.com/lightkeeperhq/guardrails/internal/logger"
)

// stubCompleter records the conversation it was handed and returns a
// canned answer.
type stubCompleter struct {
	received []Message
	answer   string
	called   bool
}

func (s *stubCompleter) Complete(_ context.Context, messages []Message) (string, error) {
	s.called = true
	s.received = messages
	return s.answer, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *stubCompleter) {
	t.Helper()

	cfg := config.GuardrailsConfig{
		Enabled:           true,
		Detectors:         []string{"all"},
		MaxInputLength:    1 << 20,
		MaxRedactionRatio: 0.50,
	}
	sanitizer, err := guardrails.New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to create sanitizer: %v", err)
	}

	stub := &stubCompleter{answer: "the meeting is on Thursday"}
	return NewPipeline(sanitizer, stub, nil, nil, logger.Nop()), stub
}

func TestPipelineCleanRequest(t *testing.T) {
	p, stub := newTestPipeline(t)

	resp, err := p.Answer(context.Background(), Request{
		Question: "when is the next meeting?",
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Refused {
		t.Fatalf("Clean question refused: %q", resp.Reason)
	}
	if resp.Answer != "the meeting is on Thursday" {
		t.Errorf("Unexpected answer: %q", resp.Answer)
	}
	if !stub.called {
		t.Error("Upstream was never called")
	}
}

func TestPipelineRefusesUnsafeQuestion(t *testing.T) {
	p, stub := newTestPipeline(t)

	resp, err := p.Answer(context.Background(), Request{
		Question: "is my SSN 123-45-6789 still valid?",
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if !resp.Refused {
		t.Fatal("Unsafe question was not refused")
	}
	if resp.RefusalMessage != RefusalUnsafeQuestion {
		t.Errorf("Wrong refusal message: %q", resp.RefusalMessage)
	}
	if stub.called {
		t.Error("Upstream was called despite refusal")
	}
	if resp.Violations == 0 {
		t.Error("Refusal response should report violation count")
	}
}

func TestPipelineRefusesUnsafeTranscript(t *testing.T) {
	p, stub := newTestPipeline(t)

	resp, err := p.Answer(context.Background(), Request{
		Question:   "summarize the meeting",
		Transcript: "Bob read out his card 4111111111111111 to the vendor",
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if !resp.Refused {
		t.Fatal("Unsafe transcript was not refused")
	}
	if resp.RefusalMessage != RefusalUnsafeTranscript {
		t.Errorf("Wrong refusal message: %q", resp.RefusalMessage)
	}
	if stub.called {
		t.Error("Upstream was called despite refusal")
	}
}

func TestPipelineSanitizesTranscriptIdentifiers(t *testing.T) {
	p, stub := newTestPipeline(t)

	resp, err := p.Answer(context.Background(), Request{
		Question:   "who joined the standup?",
		Transcript: "Jim (employee id: 99213) joined at nine",
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Refused {
		t.Fatalf("High-severity identifier should redact, not refuse: %q", resp.Reason)
	}

	for _, msg := range stub.received {
		if strings.Contains(msg.Content, "99213") {
			t.Errorf("Raw identifier forwarded upstream: %q", msg.Content)
		}
	}
}

func TestPipelineHistoryFiltering(t *testing.T) {
	p, stub := newTestPipeline(t)

	history := []Message{
		{Role: "user", Content: "what did we decide last week?"},
		{Role: "assistant", Content: "you agreed to ship on Thursday"},
		{Role: "user", Content: "my SSN is 123-45-6789, does that matter?"},
		{Role: "user", Content: "also the card 4111111111111111 was declined"},
		{Role: "user", Content: "call me back at 555-123-4567"},
	}

	prepared, refusal := p.Prepare(context.Background(), Request{
		Question: "ok, what next?",
		History:  history,
	})
	if refusal != nil {
		t.Fatalf("Unsafe history should be dropped, not refused: %q", refusal.Reason)
	}

	// Two of five messages carry critical data and must be dropped.
	if prepared.DroppedHistory != 2 {
		t.Fatalf("Expected 2 dropped messages, got %d", prepared.DroppedHistory)
	}
	if len(prepared.History) != 3 {
		t.Fatalf("Expected 3 forwarded messages, got %d", len(prepared.History))
	}

	resp, err := p.Answer(context.Background(), Request{
		Question: "ok, what next?",
		History:  history,
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Refused {
		t.Fatalf("Request refused: %q", resp.Reason)
	}
	if resp.DroppedHistory != 2 {
		t.Errorf("Expected 2 dropped messages in response, got %d", resp.DroppedHistory)
	}

	// Nothing forwarded upstream may contain the dropped raw values, and
	// the kept phone number must be redacted.
	for _, msg := range stub.received {
		for _, raw := range []string{"123-45-6789", "4111111111111111", "555-123-4567"} {
			if strings.Contains(msg.Content, raw) {
				t.Errorf("Raw value %q forwarded upstream in %q", raw, msg.Content)
			}
		}
	}

	// The safe history entries are still present.
	var foundDecision bool
	for _, msg := range stub.received {
		if strings.Contains(msg.Content, "ship on Thursday") {
			foundDecision = true
		}
	}
	if !foundDecision {
		t.Error("Safe history message was not forwarded")
	}
}

func TestPipelineForwardsOnlySanitizedText(t *testing.T) {
	p, stub := newTestPipeline(t)

	resp, err := p.Answer(context.Background(), Request{
		Question: "can you mail jane.doe@example.com the agenda?",
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Refused {
		t.Fatalf("Medium-severity question refused: %q", resp.Reason)
	}
	if resp.Violations != 1 {
		t.Errorf("Expected 1 violation, got %d", resp.Violations)
	}

	last := stub.received[len(stub.received)-1]
	if strings.Contains(last.Content, "jane.doe@example.com") {
		t.Errorf("Raw address forwarded upstream: %q", last.Content)
	}
	if !strings.Contains(last.Content, "[EMAIL_REDACTED]") {
		t.Errorf("Sanitized question missing placeholder: %q", last.Content)
	}
}
