// Package sentinel screens free-text rationale attached to governance events
// for coercive or manipulative language. Matches block lock eligibility until
// the rationale is rewritten.
package sentinel

import (
	"regexp"
	"sort"

	"aegis/internal/domain"
)

type patternFamily struct {
	name     string
	patterns []*regexp.Regexp
}

var families = []patternFamily{
	{
		name: "Survival language",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bi need\b`),
			regexp.MustCompile(`(?i)\bi must\b`),
			regexp.MustCompile(`(?i)non-negotiable`),
			regexp.MustCompile(`(?i)\bif we don'?t\b.*\bi will\b`),
		},
	},
	{
		name: "Parental tone",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)listen to me`),
			regexp.MustCompile(`(?i)because i said so`),
			regexp.MustCompile(`(?i)\bi know better\b`),
		},
	},
	{
		// Serialization bugs leaking into user-facing rationale.
		name: "Glitch marker",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\[glitch\]`),
			regexp.MustCompile(`\{ghost\}`),
			regexp.MustCompile(`\bundefined\b`),
			regexp.MustCompile(`\[object Object\]`),
		},
	},
}

// DetectShadowAffects scans every event carrying a rationale against the
// fixed pattern families and returns de-duplicated, sorted match
// descriptions. Matching runs on the raw untrimmed text. Pure; the result
// set does not depend on check order.
func DetectShadowAffects(events []domain.GovernanceEvent) []string {
	seen := map[string]bool{}
	for _, ev := range events {
		if ev.Rationale == "" {
			continue
		}
		for _, fam := range families {
			for _, re := range fam.patterns {
				if m := re.FindString(ev.Rationale); m != "" {
					seen[fam.name+`: "`+m+`"`] = true
				}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ScanText applies the same classifiers to a single rationale string.
func ScanText(text string) []string {
	if text == "" {
		return nil
	}
	return DetectShadowAffects([]domain.GovernanceEvent{{Rationale: text}})
}
