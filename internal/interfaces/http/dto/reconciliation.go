package dto

import "time"

// DriverResponse describes one reconciliation driver
type DriverResponse struct {
	Name           string         `json:"name"`
	Enabled        bool           `json:"enabled"`
	Scheduled      bool           `json:"scheduled"`
	Running        bool           `json:"running"`
	Delay          string         `json:"delay"`
	InitialDelay   string         `json:"initial_delay"`
	Runs           int            `json:"runs"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastStartedAt  *time.Time     `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time     `json:"last_finished_at,omitempty"`
	LastResult     string         `json:"last_result,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	LastCandidates int            `json:"last_candidates"`
	LastOutcomes   map[string]int `json:"last_outcomes,omitempty"`
}

// TriggerResponse acknowledges a manual run request
type TriggerResponse struct {
	Driver    string `json:"driver"`
	Triggered bool   `json:"triggered"`
}

// DriverNameRequest binds the :name path parameter
type DriverNameRequest struct {
	Name string `uri:"name" binding:"required,max=64"`
}
