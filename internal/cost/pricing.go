package cost

import "strings"

// ModelPricing holds per-million-token USD pricing for one model. CachedPerM
// defaults to half of InputPerM when a pricing table entry omits it,
// matching the component design's default discount.
type ModelPricing struct {
	InputPerM  float64
	CachedPerM float64
	OutputPerM float64
}

// matchRule binds a model-name pattern to pricing. Patterns ending in "*"
// match by prefix; patterns starting with "*" match by suffix; anything else
// must match exactly. Exact matches are tried before pattern matches.
type matchRule struct {
	pattern string
	pricing ModelPricing
}

// Table resolves pricing by model name. The zero value has no entries;
// callers get DefaultTable() or build one with NewTable. The config's
// PROMPT_PRICE_PER_M / OUTPUT_PRICE_PER_M / CACHED_PRICE_PER_M values are
// not applied to any table: the process command uses DefaultTable() as is.
type Table struct {
	exact   map[string]ModelPricing
	pattern []matchRule
	// fallback is used when nothing else matches.
	fallback *ModelPricing
}

// NewTable builds a pricing table from explicit rules. Only real, publicly
// documented model identifiers belong here — this table is configuration,
// not a product announcement.
func NewTable(exact map[string]ModelPricing, patterns []matchRule, fallback *ModelPricing) *Table {
	t := &Table{exact: map[string]ModelPricing{}, fallback: fallback}
	for k, v := range exact {
		t.exact[k] = normalize(v)
	}
	for _, r := range patterns {
		r.pricing = normalize(r.pricing)
		t.pattern = append(t.pattern, r)
	}
	return t
}

func normalize(p ModelPricing) ModelPricing {
	if p.CachedPerM == 0 {
		p.CachedPerM = p.InputPerM * 0.5
	}
	return p
}

// DefaultTable returns the built-in pricing for publicly documented models
// this module is grounded to exercise in its test fixtures and examples.
func DefaultTable() *Table {
	return NewTable(
		map[string]ModelPricing{
			"gpt-4o":                  {InputPerM: 2.50, OutputPerM: 10.00},
			"gpt-4o-mini":             {InputPerM: 0.15, OutputPerM: 0.60},
			"text-embedding-3-small":  {InputPerM: 0.02, OutputPerM: 0},
			"text-embedding-3-large":  {InputPerM: 0.13, OutputPerM: 0},
			"claude-3-5-sonnet-20241022": {InputPerM: 3.00, OutputPerM: 15.00},
			"claude-3-5-haiku-20241022":  {InputPerM: 0.80, OutputPerM: 4.00},
		},
		[]matchRule{
			{pattern: "gpt-4o*", pricing: ModelPricing{InputPerM: 2.50, OutputPerM: 10.00}},
			{pattern: "claude-3-5-*", pricing: ModelPricing{InputPerM: 3.00, OutputPerM: 15.00}},
		},
		&ModelPricing{InputPerM: 1.00, OutputPerM: 3.00},
	)
}

// Lookup resolves pricing for model, trying exact match, then prefix/suffix
// patterns in registration order, then the table's fallback. ok is false
// only if there is no fallback and nothing matched.
func (t *Table) Lookup(model string) (ModelPricing, bool) {
	if p, ok := t.exact[model]; ok {
		return p, true
	}
	for _, r := range t.pattern {
		if strings.HasSuffix(r.pattern, "*") && strings.HasPrefix(model, strings.TrimSuffix(r.pattern, "*")) {
			return r.pricing, true
		}
		if strings.HasPrefix(r.pattern, "*") && strings.HasSuffix(model, strings.TrimPrefix(r.pattern, "*")) {
			return r.pricing, true
		}
	}
	if t.fallback != nil {
		return *t.fallback, true
	}
	return ModelPricing{}, false
}

// Override replaces (or adds) the exact-match entry for model. Nothing in
// this module calls it with the config's price values.
func (t *Table) Override(model string, p ModelPricing) {
	t.exact[model] = normalize(p)
}
