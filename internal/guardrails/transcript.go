package guardrails

import "go.uber.org/zap"

// transcriptContext is the diagnostic label for transcript scans.
const transcriptContext = "meeting_transcript"

// SanitizeTranscript runs the base pass over a meeting transcript and
// then applies the transcript-only detectors (employee/badge/staff IDs)
// to the already-sanitized text. Violations from the second pass carry
// offsets into the text produced by the first pass.
func (s *Sanitizer) SanitizeTranscript(transcript string) Result {
	base := s.Sanitize(transcript, transcriptContext)
	if !s.config.Enabled || base.SanitizedText == "" {
		return base
	}

	text, extra := s.scan(base.SanitizedText, s.transcriptDetectors)
	if len(extra) == 0 {
		return base
	}

	violations := append(base.Violations, extra...)

	s.logger.Info("Transcript identifiers redacted",
		zap.String("context", transcriptContext),
		zap.Int("identifier_violations", len(extra)),
	)

	return Result{
		SanitizedText:   text,
		Violations:      violations,
		HasViolations:   true,
		OriginalLength:  base.OriginalLength,
		SanitizedLength: len(text),
	}
}
