package guardrails

import "regexp"

// DefaultDetectors returns the base detector table. Order matters: it is
// the priority order used when overlapping matches are resolved, and the
// order violations are reported in. Replacement tokens are chosen so that
// no detector can re-match already-redacted output.
func DefaultDetectors() []Detector {
	return []Detector{
		{
			Category:    CategoryEmail,
			Pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			Severity:    SeverityMedium,
			Replacement: "[EMAIL_REDACTED]",
		},
		{
			// The word-boundary after the optional paren keeps this from
			// firing inside longer digit runs such as card numbers.
			Category:    CategoryPhone,
			Pattern:     regexp.MustCompile(`(?:\+1[-.\s]?)?\(?\b\d{3}(?:\)[-.\s]?|[-.\s])?\d{3}[-.\s]?\d{4}\b`),
			Severity:    SeverityMedium,
			Replacement: "[PHONE_REDACTED]",
		},
		{
			Category:    CategorySSN,
			Pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Severity:    SeverityCritical,
			Replacement: "[SSN_REDACTED]",
		},
		{
			Category:    CategoryCreditCard,
			Pattern:     regexp.MustCompile(`\b\d(?:[ -]?\d){12,15}\b`),
			Severity:    SeverityCritical,
			Replacement: "[CREDIT_CARD_REDACTED]",
		},
		{
			Category:    CategoryAPIKey,
			Pattern:     regexp.MustCompile(`\b(?:sk-[A-Za-z0-9]{20,}|AKIA[0-9A-Z]{16}|ghp_[A-Za-z0-9]{36}|(?i:api[_-]?key)\s*[:=]\s*[A-Za-z0-9_\-]{8,})\b`),
			Severity:    SeverityCritical,
			Replacement: "[API_KEY_REDACTED]",
		},
		{
			Category:    CategoryPassword,
			Pattern:     regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\s*[:=]\s*\S+`),
			Severity:    SeverityCritical,
			Replacement: "[PASSWORD_REDACTED]",
		},
		{
			Category:    CategoryIPAddress,
			Pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			Severity:    SeverityLow,
			Replacement: "[IP_REDACTED]",
		},
		{
			Category:    CategoryURLWithCredentials,
			Pattern:     regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s/:@]+:[^\s/:@]+@\S+`),
			Severity:    SeverityCritical,
			Replacement: "[URL_REDACTED]",
		},
		{
			Category:    CategoryFinancialAccount,
			Pattern:     regexp.MustCompile(`\b(?:[A-Z]{2}\d{2}[A-Z0-9]{11,30}|(?i:account|acct|routing)\s*(?:number|no\.?|#)?\s*[:#=]\s*\d{6,17})\b`),
			Severity:    SeverityCritical,
			Replacement: "[FINANCIAL_ACCOUNT_REDACTED]",
		},
	}
}

// TranscriptDetectors returns the additional detectors applied by the
// meeting-transcript pass on top of the base table. Employee, badge and
// staff identifiers show up in transcripts but are too noisy to scan for
// in ordinary chat text.
func TranscriptDetectors() []Detector {
	return []Detector{
		{
			Category:    CategoryPersonalID,
			Pattern:     regexp.MustCompile(`(?i)\b(?:employee|badge|staff)\s*(?:id|number|no\.?)?\s*[:#]?\s*\d{3,12}\b`),
			Severity:    SeverityHigh,
			Replacement: "[PERSONAL_ID_REDACTED]",
		},
		{
			Category:    CategoryPersonalID,
			Pattern:     regexp.MustCompile(`\b(?:EMP|BDG)-\d{4,8}\b`),
			Severity:    SeverityHigh,
			Replacement: "[PERSONAL_ID_REDACTED]",
		},
	}
}
