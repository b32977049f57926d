package routing

import (
	"strings"
	"time"

	"kestrel-hq/kestrel/pkg/config"
)

// Rule is a compiled route rule. Rules are immutable after table build.
type Rule struct {
	// Pattern is the path pattern this rule matches. A pattern ending in
	// "/" matches the prefix; any other pattern matches the exact path.
	Pattern string

	// Class is the route class name (general, api, auth, admin, upload).
	Class string

	// Pool is the upstream pool name requests are dispatched to.
	Pool string

	// Cacheable marks GET responses on this route as cache participants.
	Cacheable bool

	// CacheTTL is the per-route freshness override (0 = cache default).
	CacheTTL time.Duration

	// Default is true for the built-in fall-through rule.
	Default bool
}

// Matches reports whether the rule matches the given request path.
func (r *Rule) Matches(path string) bool {
	if r.Default {
		return true
	}
	if strings.HasSuffix(r.Pattern, "/") {
		return strings.HasPrefix(path, r.Pattern)
	}
	return path == r.Pattern
}

// Table is an ordered, immutable route rule set.
type Table struct {
	rules []Rule
	def   Rule
}

// NewTable compiles a route table from configuration. The declared order is
// preserved. The default rule sends unmatched traffic to defaultPool in the
// general class, uncached.
func NewTable(routes []config.RouteConfig, defaultPool string) *Table {
	rules := make([]Rule, 0, len(routes))
	for _, rc := range routes {
		class := rc.Class
		if class == "" {
			class = config.ClassGeneral
		}
		rules = append(rules, Rule{
			Pattern:   rc.Pattern,
			Class:     class,
			Pool:      rc.Pool,
			Cacheable: rc.Cacheable,
			CacheTTL:  rc.CacheTTL,
		})
	}

	return &Table{
		rules: rules,
		def: Rule{
			Pattern: "/",
			Class:   config.ClassGeneral,
			Pool:    defaultPool,
			Default: true,
		},
	}
}

// Classify returns the first rule matching path, or the default rule when
// nothing matches. It is a pure function: O(rules) per call with no
// allocation, safe for concurrent use.
func (t *Table) Classify(path string) *Rule {
	for i := range t.rules {
		if t.rules[i].Matches(path) {
			return &t.rules[i]
		}
	}
	return &t.def
}

// Rules returns the configured rules in evaluation order, excluding the
// default rule. The returned slice must not be modified.
func (t *Table) Rules() []Rule {
	return t.rules
}

// DefaultRule returns the built-in fall-through rule.
func (t *Table) DefaultRule() Rule {
	return t.def
}
