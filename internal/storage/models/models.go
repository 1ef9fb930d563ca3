package models

import "time"

// Lead is a captured prospect contact extracted from an assistant exchange.
type Lead struct {
	ID        string
	SessionID string
	Name      string
	Phone     string
	Email     string
	Message   string
	Notified  bool
	CreatedAt time.Time
}

// Exchange is one persisted question/answer pair.
type Exchange struct {
	ID            string
	SessionID     string
	Question      string
	Answer        string
	VectorResults int
	LeadDetected  bool
	ImageCount    int
	LatencyMS     int64
	CreatedAt     time.Time
}
