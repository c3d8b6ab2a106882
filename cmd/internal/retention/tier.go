package retention

import "fmt"

// Tier is a retention bucket. Tiers are ordered from fine to coarse.
type Tier int

const (
	Daily Tier = iota
	Weekly
	Monthly
)

// Tiers lists all tiers from fine to coarse
var Tiers = []Tier{Daily, Weekly, Monthly}

// Prefix is the artifact name prefix of the tier
func (t Tier) Prefix() string {
	switch t {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return fmt.Sprintf("tier%d", int(t))
	}
}

func (t Tier) String() string {
	return t.Prefix()
}

// ArtifactName returns the name of the artifact holding backup id in this tier
func (t Tier) ArtifactName(id Identifier) string {
	return t.Prefix() + "-" + id.String() + ".sql"
}
