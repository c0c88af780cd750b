package models

import "fmt"

// Slot identifies one of the three parallel firmware/config channels a
// device type may enable independently.
type Slot int

const (
	SlotPrimary Slot = iota
	SlotSecondary
	SlotTertiary

	// SlotCount is the number of feature slots.
	SlotCount = 3
)

// AllSlots lists the slots in priority order, most primary first.
var AllSlots = [SlotCount]Slot{SlotPrimary, SlotSecondary, SlotTertiary}

// String returns a human readable slot name
func (s Slot) String() string {
	switch s {
	case SlotPrimary:
		return "primary"
	case SlotSecondary:
		return "secondary"
	case SlotTertiary:
		return "tertiary"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// Valid reports whether the slot is one of the three defined channels
func (s Slot) Valid() bool {
	return s >= SlotPrimary && s <= SlotTertiary
}

// SlotFlags holds one boolean per feature slot, addressed by Slot rather
// than by field name.
type SlotFlags [SlotCount]bool

// Get returns the flag for the given slot; out-of-range slots read false
func (f SlotFlags) Get(s Slot) bool {
	if !s.Valid() {
		return false
	}
	return f[s]
}

// Set sets the flag for the given slot
func (f *SlotFlags) Set(s Slot, v bool) {
	if s.Valid() {
		f[s] = v
	}
}

// Any reports whether any slot flag is set
func (f SlotFlags) Any() bool {
	return f[0] || f[1] || f[2]
}

// SlotStrings holds one string per feature slot
type SlotStrings [SlotCount]string

// Get returns the value for the given slot
func (f SlotStrings) Get(s Slot) string {
	if !s.Valid() {
		return ""
	}
	return f[s]
}

// Set sets the value for the given slot
func (f *SlotStrings) Set(s Slot, v string) {
	if s.Valid() {
		f[s] = v
	}
}
