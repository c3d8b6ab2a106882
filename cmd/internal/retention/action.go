package retention

import "fmt"

// ActionKind is the kind of a physical artifact operation
type ActionKind string

const (
	// Promote moves an artifact into the next coarser tier
	Promote ActionKind = "promote"
	// Delete removes an artifact
	Delete ActionKind = "delete"
)

// Action is an artifact operation decided by the rotation engine
type Action struct {
	Kind ActionKind
	ID   Identifier
	From Tier
	// To is only set for promotions
	To Tier
}

// Source is the artifact name the action operates on
func (a Action) Source() string {
	return a.From.ArtifactName(a.ID)
}

// Target is the artifact name after a promotion
func (a Action) Target() string {
	if a.Kind != Promote {
		return ""
	}
	return a.To.ArtifactName(a.ID)
}

func (a Action) String() string {
	if a.Kind == Promote {
		return fmt.Sprintf("promote %s from %s to %s", a.ID, a.From, a.To)
	}
	return fmt.Sprintf("delete %s from %s", a.ID, a.From)
}
