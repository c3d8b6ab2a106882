package retention

import "slices"

// State holds the retained backup identifiers of every tier, oldest first
type State struct {
	Daily   []Identifier `json:"daily"`
	Weekly  []Identifier `json:"weekly"`
	Monthly []Identifier `json:"monthly"`
}

// NewState returns an empty state
func NewState() *State {
	return &State{
		Daily:   []Identifier{},
		Weekly:  []Identifier{},
		Monthly: []Identifier{},
	}
}

// Tier returns the identifiers retained in the given tier
func (s *State) Tier(t Tier) []Identifier {
	switch t {
	case Daily:
		return s.Daily
	case Weekly:
		return s.Weekly
	case Monthly:
		return s.Monthly
	default:
		return nil
	}
}

// Latest returns the newest identifier of the tier
func (s *State) Latest(t Tier) (Identifier, bool) {
	ids := s.Tier(t)
	if len(ids) == 0 {
		return Identifier{}, false
	}
	return ids[len(ids)-1], true
}

// Len returns the total amount of retained backups
func (s *State) Len() int {
	return len(s.Daily) + len(s.Weekly) + len(s.Monthly)
}

// Clone returns a deep copy of the state
func (s *State) Clone() *State {
	clone := func(ids []Identifier) []Identifier {
		if ids == nil {
			return []Identifier{}
		}
		return slices.Clone(ids)
	}
	return &State{
		Daily:   clone(s.Daily),
		Weekly:  clone(s.Weekly),
		Monthly: clone(s.Monthly),
	}
}

func (s *State) ptr(t Tier) *[]Identifier {
	switch t {
	case Daily:
		return &s.Daily
	case Weekly:
		return &s.Weekly
	default:
		return &s.Monthly
	}
}

func (s *State) push(t Tier, id Identifier) {
	p := s.ptr(t)
	*p = append(*p, id)
}

func (s *State) popOldest(t Tier) Identifier {
	p := s.ptr(t)
	oldest := (*p)[0]
	*p = (*p)[1:]
	return oldest
}
