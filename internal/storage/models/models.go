package models

import "time"

// QueryRecord is one processed request, kept for the history endpoint.
type QueryRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Backend   string    `json:"llm_type"`
	Intent    string    `json:"intent"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Graph     bool      `json:"graph"`
	Status    string    `json:"status"`
	LatencyMS int       `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

type ConversationTurn struct {
	ID              int64
	ConversationKey string
	Role            string
	Content         string
	CreatedAt       time.Time
}
