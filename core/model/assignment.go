package model

// Assignment pairs one customer with one taxi for a single ride. A taxi
// holds at most one assignment at a time; a newer assignment supersedes
// any previous row for the same taxi.
type Assignment struct {
	CustomerID string `json:"customer_id"`
	TaxiID     string `json:"taxi_id"`
}
