package vamm

// Direction is the side of the curve a swap acts on. AddToAMM pays quote
// asset into the curve (long exposure for the trader); RemoveFromAMM takes
// quote asset out (short exposure).
type Direction int

const (
	AddToAMM Direction = iota
	RemoveFromAMM
)

func (d Direction) String() string {
	switch d {
	case AddToAMM:
		return "add_to_amm"
	case RemoveFromAMM:
		return "remove_from_amm"
	default:
		return "unknown"
	}
}

// Opposite returns the flipped direction. swapOutput mutates reserves with
// the opposite sense from the requested direction.
func (d Direction) Opposite() Direction {
	if d == AddToAMM {
		return RemoveFromAMM
	}
	return AddToAMM
}

// Side is the trade side as seen by the margin engine's caller.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// Direction maps the trade side onto the curve: buys add quote to the AMM,
// sells remove it.
func (s Side) Direction() Direction {
	if s == SideBuy {
		return AddToAMM
	}
	return RemoveFromAMM
}

// ParseDirection resolves the wire name of a direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "add_to_amm":
		return AddToAMM, true
	case "remove_from_amm":
		return RemoveFromAMM, true
	default:
		return 0, false
	}
}

// ParseSide resolves the wire name of a trade side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy":
		return SideBuy, true
	case "sell":
		return SideSell, true
	default:
		return 0, false
	}
}
