package dispatch

import "time"

// Config defines dispatch-related settings.
type Config struct {
	DefaultDeadline     string   `json:"default_deadline"`
	DefaultRestaurantID string   `json:"default_restaurant_id"`
	DefaultAccepts      []string `json:"default_accepts"`
	AcceptLink          string   `json:"accept_link"`
	CandidateLimit      int      `json:"candidate_limit"`

	// NotifyTimeoutSeconds bounds the background delivery of one offer,
	// broker retries included.
	NotifyTimeoutSeconds int `json:"notify_timeout_seconds"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.DefaultDeadline == "" {
		c.DefaultDeadline = "10 PM"
	}
	if c.DefaultRestaurantID == "" {
		c.DefaultRestaurantID = "restaurant:pasta-palace"
	}
	if c.DefaultAccepts == nil {
		c.DefaultAccepts = []string{"hot_prepared_food"}
	}
	if c.AcceptLink == "" {
		c.AcceptLink = "https://resqmeals.app/accept/demo"
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 50
	}
	if c.NotifyTimeoutSeconds <= 0 {
		c.NotifyTimeoutSeconds = 30
	}
}

// NotifyTimeout returns NotifyTimeoutSeconds as a duration.
func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}
