package guardrails

import (
	"fmt"
	"strings"
)

// DefaultMaxRedactionRatio is the fraction of content that may be
// redacted before a result is considered unsafe to forward. Above this,
// so much of the message was sensitive that the remainder is unlikely to
// be answerable, and forwarding it risks leaking via context.
const DefaultMaxRedactionRatio = 0.50

// EvaluateSafety applies the safety policy to a sanitization result and
// returns a verdict. It never fails: every result maps to a verdict.
//
// Policy, first match wins:
//  1. any critical-severity violation -> unsafe
//  2. redacted fraction of the original content above the configured
//     ratio -> unsafe
//  3. otherwise safe
func (s *Sanitizer) EvaluateSafety(result Result) Verdict {
	ratio := s.config.MaxRedactionRatio
	if ratio <= 0 {
		ratio = DefaultMaxRedactionRatio
	}
	return evaluate(result, ratio)
}

func evaluate(result Result, maxRedactionRatio float64) Verdict {
	if critical := criticalCategories(result); critical != nil {
		return Verdict{
			Safe:   false,
			Reason: fmt.Sprintf("content contains critical violations: %s", strings.Join(critical, ", ")),
		}
	}

	// Empty content has nothing to redact; skip the ratio check to avoid
	// dividing by zero.
	if result.OriginalLength > 0 {
		redacted := float64(result.OriginalLength-result.SanitizedLength) / float64(result.OriginalLength)
		if redacted > maxRedactionRatio {
			return Verdict{
				Safe:   false,
				Reason: fmt.Sprintf("excessive redaction: %.1f%% of content was removed", redacted*100),
			}
		}
	}

	return Verdict{Safe: true}
}
