package hierarchy

import "testing"

func TestParseSlot(t *testing.T) {
	cases := map[string]Slot{
		"introducer": SlotIntroducer,
		"PM":         SlotPM,
		" spm ":      SlotSPM,
		"CMD":        SlotCMD,
	}
	for input, want := range cases {
		got, ok := ParseSlot(input)
		if !ok || got != want {
			t.Errorf("ParseSlot(%q) = %q, %v; want %q", input, got, ok, want)
		}
	}

	for _, bad := range []string{"", "ceo", "intro", "pm_id"} {
		if _, ok := ParseSlot(bad); ok {
			t.Errorf("ParseSlot(%q) unexpectedly succeeded", bad)
		}
	}
}

func TestSlots_NinePositionsOrdered(t *testing.T) {
	if len(Slots) != 9 {
		t.Fatalf("expected nine slots, got %d", len(Slots))
	}
	if Slots[0] != SlotIntroducer {
		t.Fatalf("expected introducer first, got %s", Slots[0])
	}
	if Slots[len(Slots)-1] != SlotCMD {
		t.Fatalf("expected cmd last, got %s", Slots[len(Slots)-1])
	}
}
