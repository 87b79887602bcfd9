package deck

import (
	"slices"
	"strconv"
)

// A Deck is the fixed set of card values a session accepts. Values are raw
// strings; a value is numeric if it parses as a float ("?" and "coffee" are
// valid cards but never feed numeric aggregation).
type Deck struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

var Fibonacci = Deck{
	Name:   "fibonacci",
	Values: []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "?", "coffee"},
}

var TShirt = Deck{
	Name:   "tshirt",
	Values: []string{"XS", "S", "M", "L", "XL", "?"},
}

// ByName resolves the built-in decks. Empty name falls back to fibonacci.
func ByName(name string) (Deck, bool) {
	switch name {
	case "", Fibonacci.Name:
		return Fibonacci, true
	case TShirt.Name:
		return TShirt, true
	default:
		return Deck{}, false
	}
}

// Custom builds a deck from an explicit value list.
func Custom(values []string) Deck {
	return Deck{Name: "custom", Values: slices.Clone(values)}
}

func (d Deck) Contains(value string) bool {
	return slices.Contains(d.Values, value)
}

// NumericValue reports whether a card value participates in numeric
// aggregation, and its parsed value if so.
func NumericValue(value string) (float64, bool) {
	f, err := strconv.ParseFloat(value, 64)
	return f, err == nil
}
