package guardrails

// SanitizeEmail sanitizes an email's subject, body and optional from
// address as three independent passes with distinct context labels, then
// aggregates the violations from all fields into one list. Fields are
// not correlated: a value split across fields is redacted per field only.
func (s *Sanitizer) SanitizeEmail(subject, body, from string) EmailResult {
	subjectResult := s.Sanitize(subject, "email_subject")
	bodyResult := s.Sanitize(body, "email_body")

	violations := make([]Violation, 0, len(subjectResult.Violations)+len(bodyResult.Violations))
	violations = append(violations, subjectResult.Violations...)
	violations = append(violations, bodyResult.Violations...)

	result := EmailResult{
		SanitizedSubject: subjectResult.SanitizedText,
		SanitizedBody:    bodyResult.SanitizedText,
	}

	if from != "" {
		fromResult := s.Sanitize(from, "email_from")
		result.SanitizedFrom = fromResult.SanitizedText
		violations = append(violations, fromResult.Violations...)
	}

	result.Violations = violations
	result.HasViolations = len(violations) > 0
	return result
}
