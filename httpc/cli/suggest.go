package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxCommandDistance is the max edit distance for command "did you mean" suggestions
const maxCommandDistance = 3

// UnknownSubcommandError returns an error for an unknown subcommand with a
// "did you mean" suggestion if a close match is found.
func UnknownSubcommandError(prefix, unknown string, validCommands []string) error {
	if best := closestCommand(unknown, validCommands); best != "" {
		return fmt.Errorf("unknown %s subcommand: %s (did you mean %q?)", prefix, unknown, best)
	}
	return fmt.Errorf("unknown %s subcommand: %s", prefix, unknown)
}

// UnknownCommandError returns an error for an unknown command with a
// "did you mean" suggestion if a close match is found.
func UnknownCommandError(unknown string, validCommands []string) error {
	if best := closestCommand(unknown, validCommands); best != "" {
		return fmt.Errorf("unknown command: %s (did you mean %q?)", unknown, best)
	}
	return fmt.Errorf("unknown command: %s", unknown)
}

// UnknownMethodError returns an error for an unsupported request method.
// Matching is case-insensitive so "gte" suggests "GET".
func UnknownMethodError(unknown string, validMethods []string) error {
	if best := closestMethod(unknown, validMethods); best != "" {
		return fmt.Errorf("unsupported request method: %s (did you mean %q?)", unknown, best)
	}
	return fmt.Errorf("unsupported request method: %s (supported: %s)", unknown, strings.Join(validMethods, ", "))
}

func closestCommand(input string, candidates []string) string {
	return closest(input, candidates, maxCommandDistance)
}

// closestMethod allows about half the method name to differ. Method names are
// short, so a fixed command distance would match almost any method.
func closestMethod(input string, methods []string) string {
	input = strings.ToUpper(input)
	return closest(input, methods, (len(input)+1)/2)
}

// closest returns the candidate nearest to input within maxDist, or empty.
// Transposed letters ("trcae", "PSOT") count as a single edit.
// Ties keep the earlier candidate.
func closest(input string, candidates []string, maxDist int) string {
	var best string
	bestDist := maxDist + 1
	for _, c := range candidates {
		if dist := editDistance(input, c); dist < bestDist {
			bestDist = dist
			best = c
		}
	}
	return best
}

func editDistance(a, b string) int {
	if a != b && sameLetters(a, b) {
		return 1
	}
	return levenshtein.ComputeDistance(a, b)
}

func sameLetters(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	ra, rb := []rune(a), []rune(b)
	slices.Sort(ra)
	slices.Sort(rb)
	return slices.Equal(ra, rb)
}
