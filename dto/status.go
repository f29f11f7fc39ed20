package dto

import (
	"time"

	"github.com/customeros/ticketstack/internal/enum"
)

// DrainResult summarizes one pass over the unseen messages.
type DrainResult struct {
	DrainID        string    `json:"drainId"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Found          int       `json:"found"`
	Processed      int       `json:"processed"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	TicketsCreated int       `json:"ticketsCreated"`
}

type MonitorStatus struct {
	Mode      enum.MonitorMode `json:"mode"`
	Failures  int              `json:"consecutiveFailures"`
	Running   bool             `json:"running"`
	Restarts  int              `json:"restarts"`
	LastDrain *DrainResult     `json:"lastDrain,omitempty"`
	LastError string           `json:"lastError,omitempty"`
}
