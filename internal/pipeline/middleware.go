package pipeline

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/opentender/tendersync/internal/types"
)

// DedupMiddleware drops items whose value at a gjson path has already been
// seen this process's lifetime. Grounded on the teacher's DedupMiddleware,
// re-keyed from a named struct field to a gjson path against the opaque
// JSON blob.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
	path string
}

// NewDedupMiddleware builds a DedupMiddleware keyed on the value at path
// (e.g. "id" or "data.id").
func NewDedupMiddleware(path string) *DedupMiddleware {
	return &DedupMiddleware{seen: make(map[string]struct{}), path: path}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(item types.Item) (types.Item, error) {
	key := gjson.GetBytes(item, m.path).String()
	if key == "" {
		return item, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return item, nil
}

// RequiredFieldsMiddleware drops items missing any of a set of gjson
// paths. Grounded on the teacher's RequiredFieldsMiddleware, re-keyed from
// struct-field presence checks to gjson path existence checks.
type RequiredFieldsMiddleware struct {
	Paths []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(item types.Item) (types.Item, error) {
	for _, p := range m.Paths {
		if !gjson.GetBytes(item, p).Exists() {
			return nil, nil
		}
	}
	return item, nil
}

// PIIRedactMiddleware scrubs common PII patterns from the raw item bytes.
// Works directly on the byte blob rather than a parsed field map, since the
// item's schema is opaque to this module (spec.md §1); this trades JSON
// structural awareness for applicability to any payload shape.
type PIIRedactMiddleware struct {
	patterns map[string]*regexp.Regexp
	logger   *slog.Logger
}

func NewPIIRedactMiddleware(logger *slog.Logger) *PIIRedactMiddleware {
	return &PIIRedactMiddleware{
		patterns: map[string]*regexp.Regexp{
			"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			"phone_intl":  regexp.MustCompile(`\+\d{1,3}[-.\s]?\(?\d{1,4}\)?[-.\s]?\d{1,4}[-.\s]?\d{1,9}`),
			"credit_card": regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
		},
		logger: logger.With("component", "pii_redact"),
	}
}

func (m *PIIRedactMiddleware) Name() string { return "pii_redact" }

func (m *PIIRedactMiddleware) Process(item types.Item) (types.Item, error) {
	s := string(item)
	for piiType, re := range m.patterns {
		if re.MatchString(s) {
			s = re.ReplaceAllString(s, "[REDACTED_"+strings.ToUpper(piiType)+"]")
			m.logger.Debug("PII redacted", "type", piiType)
		}
	}
	return types.Item(s), nil
}
