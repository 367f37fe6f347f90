package bus

// Topic naming contract. Per-taxi and per-customer topics are derived
// deterministically from the entity identifier.
const (
	// RideRequests carries customer ride requests, payload
	// "customerId#destinationId".
	RideRequests = "ride-requests"

	// TaxiStatus carries free-text taxi status lines, used only for the
	// simplest "has arrived" signal.
	TaxiStatus = "taxi-status"

	// PositionUpdates carries the encrypted StatusUpdate envelopes from
	// taxis to the coordinator.
	PositionUpdates = "taxi-position-updates"

	// MapSnapshots carries the periodic spectator grid snapshot,
	// fire-and-forget.
	MapSnapshots = "map-snapshots"
)

// RideReplies names the coordinator→customer reply topic.
func RideReplies(customerID string) string { return "ride-replies-" + customerID }

// TaxiDirective names the coordinator→taxi directive topic.
func TaxiDirective(taxiID string) string { return "taxi-directive-" + taxiID }
