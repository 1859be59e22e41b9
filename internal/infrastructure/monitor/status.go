package monitor

import "time"

// Status is the last observed health of the node's dependencies.
type Status struct {
	Storage        string    `json:"storage"`
	PostgreSQL     bool      `json:"postgresql"`
	Redis          bool      `json:"redis"`
	DeadLetter     bool      `json:"dead_letter"`
	DeadLetterSize int       `json:"dead_letter_size"`
	RelayLocalMode bool      `json:"relay_local_mode"`
	LastCheck      time.Time `json:"last_check"`
}
