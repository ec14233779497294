package model

// RankedCandidate is one entry of a charity ranking. It is never persisted
// on its own.
type RankedCandidate struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}
