package queue

const keyPrefix = "queue:"

// EventsChannel carries job lifecycle events for dashboards
const EventsChannel = "queue:events"

func pendingKey(name string) string    { return keyPrefix + name }
func processingKey(name string) string { return keyPrefix + name + ":processing" }
func deadLetterKey(name string) string { return keyPrefix + name + ":dlq" }
