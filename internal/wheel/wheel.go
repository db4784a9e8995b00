package wheel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Variant identifies a wheel layout.
type Variant string

const (
	European Variant = "european"
	American Variant = "american"
)

// ParseVariant maps a user or persisted value to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case European:
		return European, nil
	case American:
		return American, nil
	}
	return "", fmt.Errorf("unknown wheel variant %q", s)
}

// Size returns the number of slots on the wheel.
func (v Variant) Size() int {
	if v == American {
		return len(americanSlots)
	}
	return len(europeanSlots)
}

// Slot is a single pocket. Numbers 0-36 map to themselves; DoubleZero is the
// extra green pocket of the American wheel.
type Slot int8

// DoubleZero is the "00" pocket.
const DoubleZero Slot = -1

const doubleZeroLabel = "00"

var (
	europeanSlots = func() [37]Slot {
		var s [37]Slot
		for i := range s {
			s[i] = Slot(i)
		}
		return s
	}()

	americanSlots = func() [38]Slot {
		var s [38]Slot
		for i := 0; i < 37; i++ {
			s[i] = Slot(i)
		}
		s[37] = DoubleZero
		return s
	}()
)

// Slots returns the fixed ordered pocket sequence of the variant. The result
// is a copy and may be modified by the caller.
func Slots(v Variant) []Slot {
	if v == American {
		out := make([]Slot, len(americanSlots))
		copy(out, americanSlots[:])
		return out
	}
	out := make([]Slot, len(europeanSlots))
	copy(out, europeanSlots[:])
	return out
}

// At returns the slot at index i of the variant's sequence.
func At(v Variant, i int) (Slot, error) {
	if i < 0 || i >= v.Size() {
		return 0, fmt.Errorf("slot index %d out of range for %s wheel", i, v)
	}
	if v == American {
		return americanSlots[i], nil
	}
	return europeanSlots[i], nil
}

// Contains reports whether s is a pocket of the variant.
func Contains(v Variant, s Slot) bool {
	if s == DoubleZero {
		return v == American
	}
	return s >= 0 && s <= 36
}

// Valid reports whether s is a pocket of any wheel.
func (s Slot) Valid() bool {
	return s == DoubleZero || (s >= 0 && s <= 36)
}

// Label is the string key used by the frequency table and persistence.
func (s Slot) Label() string {
	if s == DoubleZero {
		return doubleZeroLabel
	}
	return strconv.Itoa(int(s))
}

func (s Slot) String() string { return s.Label() }

// Order is the position of the slot in wheel order (0, 1..36, 00). It is used
// as the tie-break key when sorting by frequency.
func (s Slot) Order() int {
	if s == DoubleZero {
		return 37
	}
	return int(s)
}

// ParseSlot parses a label such as "17" or "00".
func ParseSlot(label string) (Slot, error) {
	label = strings.TrimSpace(label)
	if label == doubleZeroLabel {
		return DoubleZero, nil
	}
	n, err := strconv.Atoi(label)
	if err != nil {
		return 0, fmt.Errorf("invalid slot label %q", label)
	}
	if n < 0 || n > 36 {
		return 0, fmt.Errorf("slot %d out of range", n)
	}
	return Slot(n), nil
}

// MarshalJSON encodes numbers as JSON numbers and 00 as the string "00".
func (s Slot) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid slot %d", int8(s))
	}
	if s == DoubleZero {
		return []byte(`"00"`), nil
	}
	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalJSON accepts a JSON number or a string label.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var label string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid slot %s", data)
		}
		label = n.String()
	}
	parsed, err := ParseSlot(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
