package guardrails

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lightkeeperhq/guardrails/internal/config"
	"github.com/lightkeeperhq/guardrails/internal/logger"
	"go.uber.org/zap"
)

// Sanitizer scans text against an ordered detector table and redacts
// matches. It holds only read-only configuration, so a single instance
// is safe for concurrent use from any number of requests.
type Sanitizer struct {
	detectors           []Detector
	transcriptDetectors []Detector
	enabled             map[Category]bool
	logger              *logger.Logger
	config              config.GuardrailsConfig
}

// New creates a sanitizer with the default detector tables.
func New(cfg config.GuardrailsConfig, log *logger.Logger) (*Sanitizer, error) {
	return NewWithDetectors(cfg, log, DefaultDetectors(), TranscriptDetectors())
}

// NewWithDetectors creates a sanitizer with a substituted detector set.
// The detector slices must not be mutated after being passed in.
func NewWithDetectors(cfg config.GuardrailsConfig, log *logger.Logger, detectors, transcriptDetectors []Detector) (*Sanitizer, error) {
	s := &Sanitizer{
		detectors:           detectors,
		transcriptDetectors: transcriptDetectors,
		enabled:             make(map[Category]bool),
		logger:              log,
		config:              cfg,
	}

	if err := s.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Guardrails sanitizer initialized",
		zap.Int("total_detectors", len(s.detectors)),
		zap.Int("transcript_detectors", len(s.transcriptDetectors)),
		zap.Int("enabled_detectors", s.countEnabled()),
	)

	return s, nil
}

// configureDetectors enables/disables detector categories based on configuration
func (s *Sanitizer) configureDetectors(categories []string) error {
	for _, d := range s.detectors {
		s.enabled[d.Category] = false
	}
	for _, d := range s.transcriptDetectors {
		s.enabled[d.Category] = false
	}

	for _, name := range categories {
		if name == "all" {
			for c := range s.enabled {
				s.enabled[c] = true
			}
			continue
		}

		if _, ok := s.enabled[Category(name)]; !ok {
			return fmt.Errorf("unknown detector category: %s", name)
		}
		s.enabled[Category(name)] = true
	}

	return nil
}

// span is a claimed replacement region in the scanned text.
type span struct {
	start, end  int
	replacement string
}

// Sanitize scans content against the base detector table and returns the
// redacted text together with every violation found. contextLabel is a
// diagnostic tag only; it never affects matching. Empty content yields an
// empty, violation-free result.
//
// Matches are located against the original text so violation offsets stay
// meaningful. Replacement is span-based: each detector claims the regions
// it matched, overlapping claims are resolved first-detector-wins (table
// order is the priority order), and the output is assembled in a single
// left-to-right pass. A violation is still recorded for a match whose
// span lost the overlap resolution.
func (s *Sanitizer) Sanitize(content, contextLabel string) Result {
	if !s.config.Enabled || content == "" {
		return Result{
			SanitizedText:   content,
			Violations:      []Violation{},
			OriginalLength:  len(content),
			SanitizedLength: len(content),
		}
	}

	if s.config.MaxInputLength > 0 && len(content) > s.config.MaxInputLength {
		s.logger.Warn("Content truncated before scanning",
			zap.String("context", contextLabel),
			zap.Int("original_length", len(content)),
			zap.Int("max_input_length", s.config.MaxInputLength),
		)
		// Back the cut up to a rune boundary so truncation never produces
		// invalid UTF-8.
		cut := s.config.MaxInputLength
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}

	sanitized, violations := s.scan(content, s.detectors)

	result := Result{
		SanitizedText:   sanitized,
		Violations:      violations,
		HasViolations:   len(violations) > 0,
		OriginalLength:  len(content),
		SanitizedLength: len(sanitized),
	}

	s.logResult(contextLabel, result)
	return result
}

// scan runs the given detectors over text and returns the redacted text
// plus all violations, in detector order then left-to-right.
func (s *Sanitizer) scan(text string, detectors []Detector) (string, []Violation) {
	violations := make([]Violation, 0)
	var claimed []span

	for _, d := range detectors {
		if !s.enabled[d.Category] {
			continue
		}

		matches := d.Pattern.FindAllStringIndex(text, -1)
		for _, m := range matches {
			violations = append(violations, Violation{
				Category:    d.Category,
				Pattern:     d.Pattern.String(),
				Position:    m[0],
				Severity:    d.Severity,
				MatchedText: text[m[0]:m[1]],
			})

			if !overlaps(claimed, m[0], m[1]) {
				claimed = append(claimed, span{start: m[0], end: m[1], replacement: d.Replacement})
			}
		}
	}

	if len(claimed) == 0 {
		return text, violations
	}

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start < claimed[j].start })

	var b strings.Builder
	prev := 0
	for _, sp := range claimed {
		b.WriteString(text[prev:sp.start])
		b.WriteString(sp.replacement)
		prev = sp.end
	}
	b.WriteString(text[prev:])

	return b.String(), violations
}

// overlaps reports whether [start, end) intersects any claimed span.
func overlaps(claimed []span, start, end int) bool {
	for _, sp := range claimed {
		if start < sp.end && end > sp.start {
			return true
		}
	}
	return false
}

// logResult emits the aggregate diagnostic summary for a scan. Raw
// matched values are never logged; only counts, categories and severity
// breakdowns leave the process.
func (s *Sanitizer) logResult(contextLabel string, result Result) {
	if !result.HasViolations {
		return
	}

	categories := make([]string, 0)
	for _, c := range result.Categories() {
		categories = append(categories, string(c))
	}

	s.logger.Info("Sensitive content redacted",
		zap.String("context", contextLabel),
		zap.Int("violations", len(result.Violations)),
		zap.Strings("categories", categories),
		zap.Any("severity_counts", result.SeverityCounts()),
		zap.Int("original_length", result.OriginalLength),
		zap.Int("sanitized_length", result.SanitizedLength),
	)

	if criticalCategories(result) != nil {
		s.logger.Warn("Critical violations detected",
			zap.String("context", contextLabel),
			zap.Strings("critical_categories", criticalCategories(result)),
		)
	}
}

// criticalCategories returns the distinct categories with a critical
// violation, in detection order, or nil when there are none.
func criticalCategories(result Result) []string {
	seen := make(map[Category]bool)
	var out []string
	for _, v := range result.Violations {
		if v.Severity == SeverityCritical && !seen[v.Category] {
			seen[v.Category] = true
			out = append(out, string(v.Category))
		}
	}
	return out
}

// countEnabled returns the number of enabled detector categories
func (s *Sanitizer) countEnabled() int {
	count := 0
	for _, enabled := range s.enabled {
		if enabled {
			count++
		}
	}
	return count
}

// EnabledCategories returns the enabled detector category names.
func (s *Sanitizer) EnabledCategories() []string {
	var out []string
	for c, enabled := range s.enabled {
		if enabled {
			out = append(out, string(c))
		}
	}
	sort.Strings(out)
	return out
}
