package guardrails

import "regexp"

// Category identifies the kind of sensitive data a detector matches.
type Category string

const (
	CategoryEmail              Category = "EMAIL"
	CategoryPhone              Category = "PHONE"
	CategorySSN                Category = "SSN"
	CategoryCreditCard         Category = "CREDIT_CARD"
	CategoryAPIKey             Category = "API_KEY"
	CategoryPassword           Category = "PASSWORD"
	CategoryIPAddress          Category = "IP_ADDRESS"
	CategoryURLWithCredentials Category = "URL_WITH_CREDENTIALS"
	CategoryPersonalID         Category = "PERSONAL_ID"
	CategoryFinancialAccount   Category = "FINANCIAL_ACCOUNT"
)

// Severity is the ordinal risk rating of a violation category.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase name of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Detector is a single immutable detection rule. The detector table is
// built once at startup; detectors are never mutated after construction.
type Detector struct {
	Category    Category
	Pattern     *regexp.Regexp
	Severity    Severity
	Replacement string
}

// Violation records one pattern match found during a scan. MatchedText
// holds the raw sensitive substring and exists only for the duration of
// the call; it is excluded from serialization and must never be written
// to a durable log.
type Violation struct {
	Category    Category `json:"category"`
	Pattern     string   `json:"pattern"`
	Position    int      `json:"position"`
	Severity    Severity `json:"severity"`
	MatchedText string   `json:"-"`
}

// Result contains the outcome of a single sanitization pass.
type Result struct {
	SanitizedText   string      `json:"sanitizedText"`
	Violations      []Violation `json:"violations"`
	HasViolations   bool        `json:"hasViolations"`
	OriginalLength  int         `json:"originalLength"`
	SanitizedLength int         `json:"sanitizedLength"`
}

// EmailResult contains the per-field outcome of sanitizing an email.
// Each field is redacted independently; Violations aggregates all fields.
type EmailResult struct {
	SanitizedSubject string      `json:"sanitizedSubject"`
	SanitizedBody    string      `json:"sanitizedBody"`
	SanitizedFrom    string      `json:"sanitizedFrom,omitempty"`
	Violations       []Violation `json:"violations"`
	HasViolations    bool        `json:"hasViolations"`
}

// Verdict is the outcome of applying the safety policy to a Result.
type Verdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

// CategoryCounts returns the number of violations per category.
func (r Result) CategoryCounts() map[Category]int {
	counts := make(map[Category]int)
	for _, v := range r.Violations {
		counts[v.Category]++
	}
	return counts
}

// SeverityCounts returns the number of violations per severity name.
func (r Result) SeverityCounts() map[string]int {
	counts := make(map[string]int)
	for _, v := range r.Violations {
		counts[v.Severity.String()]++
	}
	return counts
}

// Categories returns the distinct categories present, in detection order.
func (r Result) Categories() []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, v := range r.Violations {
		if !seen[v.Category] {
			seen[v.Category] = true
			out = append(out, v.Category)
		}
	}
	return out
}
