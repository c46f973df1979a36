package search

import "fmt"

// OverFetchFactor is how many fragment hits are requested per wanted card. A card
// can match on up to models.FragmentSlots fragments, so this is the worst case.
const OverFetchFactor = 4

const expansionTemplate = "Find business cards matching the following criteria: %s Consider job titles, names, locations, and professional context."

// ExpandQuery wraps a raw query in the fixed card search template.
func ExpandQuery(raw string) string {
	return fmt.Sprintf(expansionTemplate, raw)
}

// Plan returns the expanded query text and how many fragment hits to request:
// desired*OverFetchFactor, capped at the number of stored fragments.
func Plan(raw string, desired, totalFragments int) (string, int) {
	k := desired * OverFetchFactor
	if k > totalFragments {
		k = totalFragments
	}
	if k < 0 {
		k = 0
	}
	return ExpandQuery(raw), k
}
