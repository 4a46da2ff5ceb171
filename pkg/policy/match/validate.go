package match

import "strings"

// forbiddenRunes are characters outside the closed pattern grammar that are
// meaningful to regex engines. Override patterns containing any of them are
// rejected outright rather than escaped, so a hostile override can never
// smuggle quantifiers, anchors, classes, or alternation into evaluation.
const forbiddenRunes = `^$\+?{}[]()|`

// ValidateOverride validates a user-supplied override pattern against the
// closed grammar. Template patterns shipped by operators are compiled
// literally and need no validation; override patterns arrive from agents and
// are held to the strict subset: literal characters plus single "*" wildcards.
func ValidateOverride(pattern string) error {
	if pattern == "" {
		return &OverrideError{Pattern: pattern, Message: "pattern cannot be empty"}
	}

	if i := strings.IndexAny(pattern, forbiddenRunes); i >= 0 {
		return &OverrideError{
			Pattern: pattern,
			Message: "contains forbidden metacharacter " + string(pattern[i]),
		}
	}

	// Repeated wildcards are the glob spelling of a nested quantifier.
	if strings.Contains(pattern, "**") {
		return &OverrideError{Pattern: pattern, Message: "contains repeated wildcard"}
	}

	return nil
}

// ValidateOverrides validates every pattern in the given rule lists.
// The first rejected pattern aborts validation.
func ValidateOverrides(lists ...[]string) error {
	for _, list := range lists {
		for _, pattern := range list {
			if err := ValidateOverride(pattern); err != nil {
				return err
			}
		}
	}
	return nil
}
