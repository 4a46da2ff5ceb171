// Package match implements signature matching for policy rule patterns.
//
// Patterns form a deliberately closed grammar: literal bytes plus a single
// wildcard token ("*") that expands to zero or more characters. Patterns are
// compiled to an explicit segment matcher rather than a regular expression,
// which eliminates catastrophic backtracking by construction.
//
// Evaluation of an ordered pattern list runs under a single wall-clock budget
// shared across the whole list. When the budget is exhausted the matcher
// reports a BudgetError instead of a best-effort result; callers are expected
// to treat that as "no match" and fail closed.
package match
