package model

// Location is a named point of interest on the grid that customers can
// request as a ride destination.
type Location struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}
