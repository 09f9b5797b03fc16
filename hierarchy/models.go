package hierarchy

import (
	"strings"
	"time"
)

// Slot names one of the nine fixed sponsor positions on an agent's chain.
type Slot string

const (
	SlotIntroducer Slot = "introducer"
	SlotPM         Slot = "pm"
	SlotSPM        Slot = "spm"
	SlotDO         Slot = "do"
	SlotSDO        Slot = "sdo"
	SlotMD         Slot = "md"
	SlotSMD        Slot = "smd"
	SlotRMD        Slot = "rmd"
	SlotCMD        Slot = "cmd"
)

// Slots lists every position in display order.
var Slots = []Slot{
	SlotIntroducer,
	SlotPM,
	SlotSPM,
	SlotDO,
	SlotSDO,
	SlotMD,
	SlotSMD,
	SlotRMD,
	SlotCMD,
}

// ParseSlot resolves a case-insensitive slot name.
func ParseSlot(s string) (Slot, bool) {
	candidate := Slot(strings.ToLower(strings.TrimSpace(s)))
	for _, slot := range Slots {
		if slot == candidate {
			return slot, true
		}
	}
	return "", false
}

// column maps a slot to its hierarchy_records column. Only values produced by
// ParseSlot reach SQL, so the mapping doubles as an injection whitelist.
func (s Slot) column() string {
	return string(s) + "_id"
}

// Record is one agent's sponsor chain: the introducer plus the eight cadre
// slots, each optionally referencing another agent profile. FeePaid is the
// sticky chain-gate flag set when a fee approval for the agent reaches paid.
type Record struct {
	AgentID   string
	FeePaid   bool
	Slots     map[Slot]*string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Occupant returns the profile id occupying the slot, if any.
func (r Record) Occupant(slot Slot) *string {
	return r.Slots[slot]
}
