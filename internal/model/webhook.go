package model

// Subscription registers a webhook endpoint for solve lifecycle events.
type Subscription struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Secret     string   `json:"secret,omitempty"`
	EventTypes []string `json:"eventTypes"`
	CreatedAt  string   `json:"createdAt,omitempty"`
}

// Matches reports whether the subscription wants the given event type.
// An empty EventTypes list subscribes to everything.
func (s Subscription) Matches(eventType string) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == eventType || t == "*" {
			return true
		}
	}
	return false
}
