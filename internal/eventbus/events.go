package eventbus

import "time"

// Topic is a named logical channel observers subscribe to.
type Topic string

const (
	// TopicLifecycle carries service-registered / service-updated /
	// service-restarted / status-changed events for every service.
	TopicLifecycle Topic = "lifecycle"

	// TopicMetrics carries the periodic store-wide snapshot.
	TopicMetrics Topic = "metrics"
)

// ServiceTopic returns the per-service metrics topic for id. It plays the
// role of a "room": observers join it individually to watch one service.
func ServiceTopic(id string) Topic {
	return Topic("service:" + id)
}

// Event types published on the bus. The names double as the wire-level
// event names pushed to websocket clients.
const (
	EventServiceRegistered = "service:registered"
	EventServiceUpdated    = "service:updated"
	EventServiceRestarted  = "service:restarted"
	EventServiceStatus     = "service:status"
	EventMetricsUpdate     = "metrics:update"
)

// Event is a single published notification.
type Event struct {
	Type    string    `json:"event"`
	Payload any       `json:"data"`
	Time    time.Time `json:"timestamp"`
}

// StatusChange is the delta payload for EventServiceStatus.
type StatusChange struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
