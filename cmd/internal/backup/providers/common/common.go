package common

import (
	"sort"
	"strings"

	"github.com/metal-stack/backup-rotator/cmd/internal/backup/providers"
	"github.com/metal-stack/backup-rotator/cmd/internal/retention"
)

// Sort the given artifacts by date, oldest first
func Sort(artifacts providers.Artifacts) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].Date.Before(artifacts[j].Date)
	})
}

// ParseName returns tier and backup identifier of an artifact name
func ParseName(name string) (retention.Tier, retention.Identifier, bool) {
	for _, tier := range retention.Tiers {
		prefix := tier.Prefix() + "-"
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".sql") {
			continue
		}
		id, err := retention.ParseIdentifier(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".sql"))
		if err != nil {
			return 0, retention.Identifier{}, false
		}
		return tier, id, true
	}
	return 0, retention.Identifier{}, false
}

// Missing returns the backups recorded in the state for which no artifact exists
func Missing(state *retention.State, artifacts providers.Artifacts) map[retention.Tier][]retention.Identifier {
	names := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		names[a.Name] = true
	}

	missing := map[retention.Tier][]retention.Identifier{}
	for _, tier := range retention.Tiers {
		for _, id := range state.Tier(tier) {
			if !names[tier.ArtifactName(id)] {
				missing[tier] = append(missing[tier], id)
			}
		}
	}
	return missing
}

// Orphans returns the artifacts that are not recorded in the state
func Orphans(state *retention.State, artifacts providers.Artifacts) providers.Artifacts {
	recorded := map[string]bool{}
	for _, tier := range retention.Tiers {
		for _, id := range state.Tier(tier) {
			recorded[tier.ArtifactName(id)] = true
		}
	}

	var orphans providers.Artifacts
	for _, a := range artifacts {
		if _, _, ok := ParseName(a.Name); !ok {
			continue
		}
		if !recorded[a.Name] {
			orphans = append(orphans, a)
		}
	}
	return orphans
}
