package entity

// Player is a participant seated on one of the two symbol slots.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol Cell   `json:"symbol,omitempty"`
}
