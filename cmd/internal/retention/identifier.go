package retention

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// IdentifierLayout is the on-disk representation of a backup identifier
const IdentifierLayout = "2006-01-02_150405"

// Identifier names one backup artifact by its creation time.
// It holds a wall-clock time with second precision and no zone.
type Identifier struct {
	t time.Time
}

// NewIdentifier returns the identifier for a backup taken at t.
// The wall clock of t is kept, sub-second precision and zone are dropped.
func NewIdentifier(t time.Time) Identifier {
	return Identifier{
		t: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC),
	}
}

// ParseIdentifier parses an identifier in IdentifierLayout
func ParseIdentifier(s string) (Identifier, error) {
	t, err := time.ParseInLocation(IdentifierLayout, s, time.UTC)
	if err != nil {
		return Identifier{}, fmt.Errorf("invalid backup identifier %q: %w", s, err)
	}
	return Identifier{t: t}, nil
}

// MustParseIdentifier is like ParseIdentifier but panics on error
func MustParseIdentifier(s string) Identifier {
	id, err := ParseIdentifier(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (i Identifier) Time() time.Time {
	return i.t
}

func (i Identifier) String() string {
	return i.t.Format(IdentifierLayout)
}

func (i Identifier) IsZero() bool {
	return i.t.IsZero()
}

func (i Identifier) Before(o Identifier) bool {
	return i.t.Before(o.t)
}

func (i Identifier) After(o Identifier) bool {
	return i.t.After(o.t)
}

func (i Identifier) Equal(o Identifier) bool {
	return i.t.Equal(o.t)
}

// date returns the calendar day of the identifier
func (i Identifier) date() time.Time {
	y, m, d := i.t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (i Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Identifier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseIdentifier(s)
	if err != nil {
		return err
	}
	*i = id
	return nil
}
