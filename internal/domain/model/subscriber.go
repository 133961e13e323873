package model

import "time"

// Subscriber is an external endpoint that receives change envelopes.
type Subscriber struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}
