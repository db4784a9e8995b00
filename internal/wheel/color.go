package wheel

// Color is the pocket colour.
type Color string

const (
	Green Color = "green"
	Red   Color = "red"
	Black Color = "black"
)

// Red numbers: 1,3,5,7,9,12,14,16,18,19,21,23,25,27,30,32,34,36
var redNumbers = map[Slot]bool{
	1: true, 3: true, 5: true, 7: true, 9: true,
	12: true, 14: true, 16: true, 18: true, 19: true,
	21: true, 23: true, 25: true, 27: true, 30: true,
	32: true, 34: true, 36: true,
}

// Black numbers: 2,4,6,8,10,11,13,15,17,20,22,24,26,28,29,31,33,35
var blackNumbers = map[Slot]bool{
	2: true, 4: true, 6: true, 8: true, 10: true,
	11: true, 13: true, 15: true, 17: true, 20: true,
	22: true, 24: true, 26: true, 28: true, 29: true,
	31: true, 33: true, 35: true,
}

// Color classifies the slot. Anything that is neither red nor black is green.
func (s Slot) Color() Color {
	switch {
	case redNumbers[s]:
		return Red
	case blackNumbers[s]:
		return Black
	default:
		return Green
	}
}

// IsRed reports whether the slot is in the red set.
func (s Slot) IsRed() bool { return redNumbers[s] }
