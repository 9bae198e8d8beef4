package entity

import (
	"time"

	"github.com/google/uuid"
)

// Scoring methods reported per sub-score.
const (
	MethodModel     = "model"
	MethodHeuristic = "heuristic"
	MethodRule      = "rule"
	MethodError     = "error"
)

// SubScore is one scorer's result on the 0..100 scale.
type SubScore struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
	Method string  `json:"method"`
}

// EvaluationResult belongs to exactly one attempt and is never mutated.
type EvaluationResult struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	Structure   SubScore  `json:"structure"`
	Content     SubScore  `json:"content"`
	Translation SubScore  `json:"translation"`
	Composite   float64   `json:"composite"`
	CreatedAt   time.Time `json:"created_at"`
}
