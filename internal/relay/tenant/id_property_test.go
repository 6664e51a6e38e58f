package tenant

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ExtractIDAlwaysValid validates that ExtractID never returns
// a tenant id that fails its own Valid grammar, regardless of how
// malformed the host/path input is — the derivation must always fall back
// to DefaultTenantID rather than propagate an invalid candidate.
func TestProperty_ExtractIDAlwaysValid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ExtractID output always satisfies Valid", prop.ForAll(
		func(host, path string) bool {
			return Valid(ExtractID(host, path))
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestProperty_ValidRejectsOutOfGrammarChars ensures Valid never accepts a
// string containing a space, one byte outside [A-Za-z0-9-].
func TestProperty_ValidRejectsOutOfGrammarChars(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a string containing a space is never valid", prop.ForAll(
		func(prefix, suffix string) bool {
			return !Valid(prefix + " " + suffix)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
