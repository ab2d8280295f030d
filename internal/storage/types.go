package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AlertRecord records one emitted (or attempted) alert.
// Keep it compact and schema-stable.
type AlertRecord struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"` // "memory_threshold" | "gateway_offline" | "manual"
	Subject    string    `json:"subject"`
	Detail     string    `json:"detail,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	Outcome    string    `json:"outcome"` // human-readable send result
	OK         bool      `json:"ok"`
}
