// internal/rank/keyword_scorer.go
package rank

import (
	"strings"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/domain"
)

// KeywordScorer classifies postings into priority tiers with the
// case-insensitive substring rules from the user config. Tier 1 rules
// run first, so a posting hitting both tiers is always tier 1.
type KeywordScorer struct {
	Cfg config.Config
}

func (s KeywordScorer) Score(job domain.JobPosting) (int, []string) {
	text := strings.ToLower(job.Title + " " + job.Company)

	tier := domain.TierDefault
	var tags []string

	applyRules := func(rules []config.Rule, ruleTier int) {
		for _, r := range rules {
			for _, needle := range r.Any {
				n := strings.ToLower(needle)
				if strings.Contains(text, n) {
					if ruleTier < tier {
						tier = ruleTier
					}
					tags = append(tags, r.Name)
					break
				}
			}
		}
	}

	applyRules(s.Cfg.Rules.Tier1, domain.TierHigh)
	applyRules(s.Cfg.Rules.Tier2, domain.TierMedium)

	return tier, uniq(tags)
}

func uniq(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
