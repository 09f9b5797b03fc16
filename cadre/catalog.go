package cadre

import (
	"errors"
	"fmt"
)

// Level is one rung of the agent cadre ladder.
type Level struct {
	Code  string
	Label string
	Rank  int
}

// Catalog holds the ordered cadre levels. It is built once at process start
// and passed by reference into validators and the fee schedule; it is never
// mutated afterwards.
type Catalog struct {
	levels []Level
	byCode map[string]Level
}

var ErrUnknownLevel = errors.New("cadre: unknown level code")

// NewCatalog validates and freezes the given levels. Codes must be unique and
// ranks strictly increasing in the order supplied.
func NewCatalog(levels []Level) (*Catalog, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("cadre: catalog requires at least one level")
	}

	byCode := make(map[string]Level, len(levels))
	prevRank := 0
	for i, lvl := range levels {
		if lvl.Code == "" {
			return nil, fmt.Errorf("cadre: level %d has empty code", i)
		}
		if _, dup := byCode[lvl.Code]; dup {
			return nil, fmt.Errorf("cadre: duplicate level code %q", lvl.Code)
		}
		if i > 0 && lvl.Rank <= prevRank {
			return nil, fmt.Errorf("cadre: rank not increasing at %q (%d after %d)", lvl.Code, lvl.Rank, prevRank)
		}
		prevRank = lvl.Rank
		byCode[lvl.Code] = lvl
	}

	frozen := make([]Level, len(levels))
	copy(frozen, levels)
	return &Catalog{levels: frozen, byCode: byCode}, nil
}

// DefaultCatalog returns the standard nine-rung ladder used by the agent network.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Level{
		{Code: "APM", Label: "Assistant Project Manager", Rank: 1},
		{Code: "PM", Label: "Project Manager", Rank: 2},
		{Code: "SPM", Label: "Senior Project Manager", Rank: 3},
		{Code: "DO", Label: "District Officer", Rank: 4},
		{Code: "SDO", Label: "Senior District Officer", Rank: 5},
		{Code: "MD", Label: "Managing Director", Rank: 6},
		{Code: "SMD", Label: "Senior Managing Director", Rank: 7},
		{Code: "RMD", Label: "Regional Managing Director", Rank: 8},
		{Code: "CMD", Label: "Chief Managing Director", Rank: 9},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the level for the given code.
func (c *Catalog) Lookup(code string) (Level, bool) {
	lvl, ok := c.byCode[code]
	return lvl, ok
}

// Validate returns ErrUnknownLevel when the code is not on the ladder.
func (c *Catalog) Validate(code string) error {
	if _, ok := c.byCode[code]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, code)
	}
	return nil
}

// EntryLevel returns the first rung of the ladder, the level new agents join at.
func (c *Catalog) EntryLevel() Level {
	return c.levels[0]
}

// Levels returns the levels in display order.
func (c *Catalog) Levels() []Level {
	out := make([]Level, len(c.levels))
	copy(out, c.levels)
	return out
}
