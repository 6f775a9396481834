package iql

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"infragraph/internal/logger"
)

// CompletionProvider is the single capability the translator needs from a
// language model. Implementations are trivially swappable for testing.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Translation is the outcome of one natural-language translation attempt.
type Translation struct {
	IQL        string  `json:"iql"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // template or model
}

// Translator converts natural-language text into IQL. A fast template stage
// runs first; the model provider is consulted only when template confidence
// falls below the threshold. Every produced statement is re-validated by the
// static classifier before being returned.
type Translator struct {
	provider  CompletionProvider
	threshold float64
}

// NewTranslator creates a translator. provider may be nil, in which case only
// the template stage runs.
func NewTranslator(provider CompletionProvider, threshold float64) *Translator {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &Translator{provider: provider, threshold: threshold}
}

type template struct {
	pattern    *regexp.Regexp
	build      func(groups []string) string
	confidence float64
}

var templates = []template{
	{
		pattern: regexp.MustCompile(`(?i)^(?:show|list|find)(?: all| me)? ([a-z0-9_-]+) (?:resources? )?in ([a-z0-9_-]+)$`),
		build: func(g []string) string {
			return fmt.Sprintf(`FIND resources WHERE resourceType = "%s" AND region = "%s"`, strings.ToLower(g[1]), strings.ToLower(g[2]))
		},
		confidence: 0.9,
	},
	{
		pattern: regexp.MustCompile(`(?i)^(?:show|list|find)(?: all| me)? ([a-z0-9_-]+) resources?$`),
		build: func(g []string) string {
			return fmt.Sprintf(`FIND resources WHERE provider = "%s"`, strings.ToLower(g[1]))
		},
		confidence: 0.85,
	},
	{
		pattern: regexp.MustCompile(`(?i)^what depends on "?([^"]+)"?$`),
		build: func(g []string) string {
			return fmt.Sprintf(`FIND downstream OF "%s"`, g[1])
		},
		confidence: 0.9,
	},
	{
		pattern: regexp.MustCompile(`(?i)^what does "?([^"]+)"? depend on$`),
		build: func(g []string) string {
			return fmt.Sprintf(`FIND upstream OF "%s"`, g[1])
		},
		confidence: 0.9,
	},
	{
		pattern: regexp.MustCompile(`(?i)^(?:count|how many) resources(?: are there)? (?:by|per) ([a-z0-9_.]+)$`),
		build: func(g []string) string {
			return fmt.Sprintf(`SUMMARIZE COUNT BY %s`, strings.ToLower(g[1]))
		},
		confidence: 0.85,
	},
	{
		pattern: regexp.MustCompile(`(?i)^(?:monthly )?cost (?:by|per) ([a-z0-9_.]+)$`),
		build: func(g []string) string {
			return fmt.Sprintf(`SUMMARIZE COST BY %s`, strings.ToLower(g[1]))
		},
		confidence: 0.85,
	},
}

const translatePrompt = `Translate the following request into a single IQL statement.
IQL grammar:
  FIND resources [WHERE <field> <op> <value> [AND ...]] [LIMIT <n>]
  FIND downstream OF "<node id>" | FIND upstream OF "<node id>"
  SUMMARIZE COUNT|COST BY <field>
Fields: provider, account, region, resourceType, name, status, owner, costMonthly, tags.<key>.
Operators: =, !=, <, <=, >, >=, LIKE, MATCHES.
Answer with the IQL statement only, no explanation.

Request: %s`

// Translate converts text into validated IQL.
func (t *Translator) Translate(ctx context.Context, text string) (*Translation, error) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "?"))
	if text == "" {
		return nil, fmt.Errorf("empty request")
	}

	if tr := matchTemplates(text); tr != nil && tr.Confidence >= t.threshold {
		return tr, nil
	}

	if t.provider == nil {
		return nil, fmt.Errorf("no template matched %q and no model provider is configured", text)
	}

	raw, err := t.provider.Complete(ctx, fmt.Sprintf(translatePrompt, text))
	if err != nil {
		return nil, fmt.Errorf("model completion: %w", err)
	}
	candidate := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "`"))
	if info := Classify(candidate); info.Kind == "invalid" {
		logger.Warnf("Model produced invalid IQL for %q: %s", text, info.Error)
		return nil, fmt.Errorf("model produced invalid IQL: %s", info.Error)
	}
	return &Translation{IQL: candidate, Confidence: 0.5, Source: "model"}, nil
}

func matchTemplates(text string) *Translation {
	for _, tpl := range templates {
		groups := tpl.pattern.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		candidate := tpl.build(groups)
		if info := Classify(candidate); info.Kind == "invalid" {
			continue
		}
		return &Translation{IQL: candidate, Confidence: tpl.confidence, Source: "template"}
	}
	return nil
}
