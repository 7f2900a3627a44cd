package guardrails

import (
	"strings"
	"testing"

	"github.com/lightkeeperhq/guardrails/internal/logger"
)

func TestEvaluateSafety(t *testing.T) {
	s := newTestSanitizer(t)

	t.Run("CleanContentIsSafe", func(t *testing.T) {
		result := Result{
			SanitizedText:   "hello",
			Violations:      []Violation{},
			OriginalLength:  5,
			SanitizedLength: 5,
		}
		if verdict := s.EvaluateSafety(result); !verdict.Safe {
			t.Errorf("Clean content marked unsafe: %q", verdict.Reason)
		}
	})

	t.Run("EmptyContentIsSafe", func(t *testing.T) {
		// Zero original length must short-circuit the ratio check.
		result := Result{Violations: []Violation{}}
		if verdict := s.EvaluateSafety(result); !verdict.Safe {
			t.Errorf("Empty content marked unsafe: %q", verdict.Reason)
		}
	})

	t.Run("LowAndMediumOnlyIsSafe", func(t *testing.T) {
		result := Result{
			Violations: []Violation{
				{Category: CategoryPhone, Severity: SeverityMedium},
				{Category: CategoryIPAddress, Severity: SeverityLow},
			},
			HasViolations:   true,
			OriginalLength:  100,
			SanitizedLength: 90,
		}
		if verdict := s.EvaluateSafety(result); !verdict.Safe {
			t.Errorf("Low/medium violations marked unsafe: %q", verdict.Reason)
		}
	})

	t.Run("CriticalIsUnsafeRegardlessOfRatio", func(t *testing.T) {
		result := Result{
			Violations: []Violation{
				{Category: CategorySSN, Severity: SeverityCritical},
			},
			HasViolations:   true,
			OriginalLength:  1000,
			SanitizedLength: 995,
		}
		verdict := s.EvaluateSafety(result)
		if verdict.Safe {
			t.Error("Critical violation marked safe")
		}
		if !strings.Contains(verdict.Reason, "SSN") {
			t.Errorf("Reason should list the critical category: %q", verdict.Reason)
		}
	})

	t.Run("CriticalReasonListsDistinctCategories", func(t *testing.T) {
		result := Result{
			Violations: []Violation{
				{Category: CategorySSN, Severity: SeverityCritical},
				{Category: CategorySSN, Severity: SeverityCritical},
				{Category: CategoryCreditCard, Severity: SeverityCritical},
				{Category: CategoryPhone, Severity: SeverityMedium},
			},
			HasViolations:   true,
			OriginalLength:  100,
			SanitizedLength: 60,
		}
		verdict := s.EvaluateSafety(result)
		if verdict.Safe {
			t.Error("Critical violations marked safe")
		}
		if !strings.Contains(verdict.Reason, "SSN") || !strings.Contains(verdict.Reason, "CREDIT_CARD") {
			t.Errorf("Reason should list both critical categories: %q", verdict.Reason)
		}
		if strings.Count(verdict.Reason, "SSN") != 1 {
			t.Errorf("Duplicate category in reason: %q", verdict.Reason)
		}
		if strings.Contains(verdict.Reason, "PHONE") {
			t.Errorf("Non-critical category leaked into reason: %q", verdict.Reason)
		}
	})

	t.Run("ExcessiveRedactionIsUnsafe", func(t *testing.T) {
		result := Result{
			Violations: []Violation{
				{Category: CategoryPhone, Severity: SeverityMedium},
			},
			HasViolations:   true,
			OriginalLength:  100,
			SanitizedLength: 40,
		}
		verdict := s.EvaluateSafety(result)
		if verdict.Safe {
			t.Error("60% redaction marked safe")
		}
		if !strings.Contains(verdict.Reason, "60.0%") {
			t.Errorf("Reason should carry the redaction percentage: %q", verdict.Reason)
		}
	})

	t.Run("RedactionAtThresholdIsSafe", func(t *testing.T) {
		// Exactly 50% is not "more than half".
		result := Result{
			Violations: []Violation{
				{Category: CategoryPhone, Severity: SeverityMedium},
			},
			HasViolations:   true,
			OriginalLength:  100,
			SanitizedLength: 50,
		}
		if verdict := s.EvaluateSafety(result); !verdict.Safe {
			t.Errorf("Redaction at the threshold marked unsafe: %q", verdict.Reason)
		}
	})

	t.Run("GrowthFromPlaceholdersIsSafe", func(t *testing.T) {
		// Placeholders longer than matches make the output grow; a
		// negative redaction ratio never trips the policy.
		result := Result{
			Violations: []Violation{
				{Category: CategoryPhone, Severity: SeverityMedium},
			},
			HasViolations:   true,
			OriginalLength:  30,
			SanitizedLength: 45,
		}
		if verdict := s.EvaluateSafety(result); !verdict.Safe {
			t.Errorf("Grown output marked unsafe: %q", verdict.Reason)
		}
	})
}

func TestEvaluateSafetyConfiguredRatio(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRedactionRatio = 0.20
	s, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to create sanitizer: %v", err)
	}

	result := Result{
		Violations:      []Violation{{Category: CategoryPhone, Severity: SeverityMedium}},
		HasViolations:   true,
		OriginalLength:  100,
		SanitizedLength: 70,
	}
	if verdict := s.EvaluateSafety(result); verdict.Safe {
		t.Error("30% redaction should be unsafe under a 20% threshold")
	}
}
