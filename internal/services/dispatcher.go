package services

// Event names pushed over websocket rooms.
const (
	EventAlertRaised    = "alert-raised"
	EventAlertUpdated   = "alert-updated"
	EventAlertCancelled = "alert-cancelled"
	EventAlertResolved  = "alert-resolved"
	EventMessageSent    = "message-sent"
)

// Dispatcher fans an event out to a websocket room. Delivery is fire
// and forget, slow subscribers are dropped rather than awaited.
type Dispatcher interface {
	Publish(room, event string, data interface{})
}
