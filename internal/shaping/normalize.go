package shaping

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// fieldTokenPattern matches a bracketed WIQL field reference. Brackets never
// appear inside a field name, so they delimit the token on both sides.
var fieldTokenPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// aliasLookup resolves a lower-cased token to its canonical name. It holds the
// bare aliases (rule a) and the wrong-namespace System.<alias> forms for fields
// whose canonical name lives outside the default namespace (rule b).
type aliasLookup struct {
	bare           map[string]string
	wrongNamespace map[string]string
}

var defaultLookup = buildAliasLookup(fieldAliasTable)

func buildAliasLookup(table []FieldAlias) aliasLookup {
	l := aliasLookup{
		bare:           make(map[string]string, len(table)),
		wrongNamespace: make(map[string]string),
	}
	for _, a := range table {
		l.bare[strings.ToLower(a.Alias)] = a.Canonical
		if !strings.HasPrefix(a.Canonical, DefaultNamespace+".") {
			l.wrongNamespace[strings.ToLower(DefaultNamespace+"."+a.Alias)] = a.Canonical
		}
	}
	return l
}

// FieldCorrection records one distinct rewrite and how often it was applied.
type FieldCorrection struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// NormalizeResult is the outcome of normalizing a WIQL query.
type NormalizeResult struct {
	Query       string            `json:"query"`
	Corrections int               `json:"corrections"`
	Changes     []FieldCorrection `json:"changes,omitempty"`
}

// Normalizer rewrites bare or mis-namespaced field references to canonical names.
// It is safe for concurrent use.
type Normalizer struct {
	lookup aliasLookup
	logger *zap.Logger
}

// NewNormalizer creates a normalizer over the built-in alias table.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		lookup: defaultLookup,
		logger: logger,
	}
}

// Normalize rewrites field references outside string literals. Each token is
// resolved against its original text exactly once, so a corrected token is never
// rescanned and normalizing twice yields the same query.
func (n *Normalizer) Normalize(query string) NormalizeResult {
	result := NormalizeResult{Query: query}
	if query == "" || !strings.Contains(query, "[") {
		return result
	}

	counts := make(map[FieldCorrection]int)
	var order []FieldCorrection

	var b strings.Builder
	b.Grow(len(query) + 32)
	for _, seg := range splitLiterals(query) {
		if seg.literal {
			b.WriteString(seg.text)
			continue
		}
		rewritten := fieldTokenPattern.ReplaceAllStringFunc(seg.text, func(token string) string {
			name := token[1 : len(token)-1]
			canonical, ok := n.lookup.resolve(name)
			if !ok {
				return token
			}
			key := FieldCorrection{From: name, To: canonical}
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
			result.Corrections++
			return "[" + canonical + "]"
		})
		b.WriteString(rewritten)
	}

	if result.Corrections == 0 {
		return result
	}

	result.Query = b.String()
	for _, c := range order {
		c.Count = counts[c]
		result.Changes = append(result.Changes, c)
		n.logger.Debug("Normalized WIQL field reference",
			zap.String("from", c.From),
			zap.String("to", c.To),
			zap.Int("occurrences", c.Count),
		)
	}
	return result
}

// resolve returns the canonical name for a token, or false when the token is
// already qualified or unknown.
func (l aliasLookup) resolve(name string) (string, bool) {
	lower := strings.ToLower(name)
	if canonical, ok := l.wrongNamespace[lower]; ok {
		return canonical, true
	}
	if hasRecognizedNamespace(name) {
		return "", false
	}
	canonical, ok := l.bare[lower]
	return canonical, ok
}

func hasRecognizedNamespace(name string) bool {
	lower := strings.ToLower(name)
	for _, ns := range recognizedNamespaces {
		if strings.HasPrefix(lower, strings.ToLower(ns)) {
			return true
		}
	}
	return false
}

type querySegment struct {
	text    string
	literal bool
}

// splitLiterals separates quoted WIQL string literals from the rest of the query.
// A doubled quote inside a literal is an escaped quote. An unterminated literal
// runs to the end of the input.
func splitLiterals(query string) []querySegment {
	var segs []querySegment
	start := 0
	i := 0
	for i < len(query) {
		c := query[i]
		if c != '\'' && c != '"' {
			i++
			continue
		}
		if i > start {
			segs = append(segs, querySegment{text: query[start:i]})
		}
		quote := c
		j := i + 1
		for j < len(query) {
			if query[j] == quote {
				if j+1 < len(query) && query[j+1] == quote {
					j += 2
					continue
				}
				j++
				break
			}
			j++
		}
		segs = append(segs, querySegment{text: query[i:j], literal: true})
		start = j
		i = j
	}
	if start < len(query) {
		segs = append(segs, querySegment{text: query[start:]})
	}
	return segs
}
