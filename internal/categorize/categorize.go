// Package categorize infers a spending category for expense rows from
// keyword affinity. Matching is deterministic: the rule table is
// evaluated top to bottom and the first rule with a matching keyword
// wins, so the table order is part of the contract.
package categorize

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Rule associates one category slug with the keywords that select it.
// Keywords are matched as case-insensitive substrings of the combined
// operation type and description text.
type Rule struct {
	Slug     string
	Keywords []string
}

// rules is evaluated in order; the order follows the default category
// taxonomy and is the tie-break when several rules could match.
var rules = []Rule{
	{Slug: "alimentation", Keywords: []string{
		"restaurant", "mcdo", "mcdonald", "boulangerie", "carrefour", "leclerc",
		"auchan", "intermarche", "lidl", "monoprix", "supermarche", "deliveroo",
		"uber eats",
	}},
	{Slug: "transport", Keywords: []string{
		"sncf", "ratp", "uber", "taxi", "total", "esso", "shell", "autoroute",
		"parking", "essence", "peage",
	}},
	{Slug: "logement", Keywords: []string{"loyer", "immobilier", "syndic"}},
	{Slug: "sante", Keywords: []string{"pharmacie", "medecin", "docteur", "hopital", "mutuelle"}},
	{Slug: "assurances", Keywords: []string{"assurance", "maif", "maaf", "axa", "matmut"}},
	{Slug: "energie", Keywords: []string{"edf", "engie", "gdf", "electricite", "gaz"}},
	{Slug: "telecommunications", Keywords: []string{"orange", "sfr", "free mobile", "free telecom", "bouygues", "internet"}},
	{Slug: "banque-frais", Keywords: []string{"frais bancaires", "commission", "agios", "cotisation carte"}},
	{Slug: "impots-taxes", Keywords: []string{"impot", "tresor public", "dgfip", "taxe"}},
	{Slug: "shopping-achats", Keywords: []string{"amazon", "fnac", "zalando", "cdiscount", "darty"}},
	{Slug: "loisirs", Keywords: []string{"cinema", "netflix", "spotify", "theatre", "concert"}},
	{Slug: "education", Keywords: []string{"ecole", "universite", "formation"}},
	{Slug: "epargne-investissement", Keywords: []string{"epargne", "livret", "bourse"}},
	{Slug: "retraits-especes", Keywords: []string{"retrait", "distributeur", "dab "}},
	{Slug: "cheques", Keywords: []string{"cheque"}},
	{Slug: "prelevements", Keywords: []string{"prelevement"}},
	{Slug: "virements", Keywords: []string{"virement"}},
}

// qifLabels maps category labels carried by QIF records onto taxonomy
// slugs before the keyword matcher gets a shot.
var qifLabels = map[string]string{
	"Food":        "alimentation",
	"Groceries":   "alimentation",
	"Restaurant":  "alimentation",
	"Gas":         "transport",
	"Salary":      "salaires",
	"Utilities":   "energie",
	"Phone":       "telecommunications",
	"Insurance":   "assurances",
	"Medical":     "sante",
	"Shopping":    "shopping-achats",
	"Entertainment": "loisirs",
	"Education":   "education",
	"Investment":  "epargne-investissement",
	"Tax":         "impots-taxes",
	"Bank Fee":    "banque-frais",
}

// MatchSlug runs the keyword table against the combined operation type
// and description. It returns the empty string when nothing matches.
func MatchSlug(operationType, description string) string {
	haystack := strings.ToLower(strings.TrimSpace(operationType + " " + description))
	if haystack == "" {
		return ""
	}
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(haystack, kw) {
				return rule.Slug
			}
		}
	}
	return ""
}

// SlugForLabel resolves an externally supplied category label (QIF "L"
// tag) through the fixed label dictionary. Unknown labels return "".
func SlugForLabel(label string) string {
	return qifLabels[strings.TrimSpace(label)]
}

// CategoryStore resolves taxonomy slugs to category ids. The taxonomy
// itself is externally owned; the categorizer only reads it.
type CategoryStore interface {
	LookupBySlug(ctx context.Context, slug string) (string, error)
}

// Categorizer binds the static rule table to a category store so
// matches come back as persisted category ids.
type Categorizer struct {
	store CategoryStore
	log   zerolog.Logger
}

func New(store CategoryStore, log zerolog.Logger) *Categorizer {
	return &Categorizer{store: store, log: log}
}

// Categorize returns the category id for an expense row, or "" when no
// rule matches. Store lookup failures degrade to "no category" with a
// warning rather than failing the row.
func (c *Categorizer) Categorize(ctx context.Context, operationType, description string) string {
	slug := MatchSlug(operationType, description)
	if slug == "" {
		return ""
	}
	return c.resolve(ctx, slug)
}

// CategorizeLabel prefers an externally supplied label (mapped through
// the label dictionary) and falls back to the keyword matcher.
func (c *Categorizer) CategorizeLabel(ctx context.Context, label, operationType, description string) string {
	if slug := SlugForLabel(label); slug != "" {
		if id := c.resolve(ctx, slug); id != "" {
			return id
		}
	}
	return c.Categorize(ctx, operationType, description)
}

func (c *Categorizer) resolve(ctx context.Context, slug string) string {
	id, err := c.store.LookupBySlug(ctx, slug)
	if err != nil {
		c.log.Warn().Err(err).Str("slug", slug).Msg("Category lookup failed, leaving row uncategorized")
		return ""
	}
	return id
}

// Rules exposes a copy of the rule table for documentation endpoints
// and tests; mutating the copy does not affect matching.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		copy(kws, r.Keywords)
		out[i] = Rule{Slug: r.Slug, Keywords: kws}
	}
	return out
}
