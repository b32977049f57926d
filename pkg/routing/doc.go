// Package routing maps inbound requests to route rules.
//
// A route rule carries the route class (rate-limit and deadline policy),
// the upstream pool, and cacheability for all requests matching its path
// pattern. Rules are evaluated in declared order, first match wins, so a
// configuration lists more specific prefixes (e.g. /api/auth/) before less
// specific ones (/api/). Unmatched requests fall through to a built-in
// default rule in the general class.
//
// The rule table is immutable after construction. On configuration reload
// a new table is built from the new snapshot and swapped in whole; the
// classifier itself is a pure function over the table with no side effects.
package routing
