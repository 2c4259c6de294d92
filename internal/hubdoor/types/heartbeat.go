package types

import "time"

// Heartbeat is one poll of /check by a door controller.
type Heartbeat struct {
	ReceivedAt time.Time `json:"timestamp"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"userAgent,omitempty"`
	DoorOpen   bool      `json:"isDoorOpen"`
}
