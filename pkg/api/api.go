// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the Bay HTTP façade.
package api

import "time"

// ShipSpecDTO is the wire form of a resource request for a Ship.
type ShipSpecDTO struct {
	CPUs   float64 `json:"cpus,omitempty"`
	Memory string  `json:"memory,omitempty"`
	Disk   string  `json:"disk,omitempty"`
}

// CreateShipRequest is the body of POST /ship.
type CreateShipRequest struct {
	TTLSeconds  int         `json:"ttl,omitempty"`
	Spec        ShipSpecDTO `json:"spec,omitempty"`
	ForceCreate bool        `json:"force_create,omitempty"`
}

// ShipResponse is the representation of a Ship returned to clients.
type ShipResponse struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Endpoint   string      `json:"endpoint,omitempty"`
	Spec       ShipSpecDTO `json:"spec"`
	TTLSeconds int         `json:"ttl"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
	WarmPool   bool        `json:"warm_pool"`
}

// ExtendTTLRequest is the body of POST /ship/{id}/extend-ttl.
type ExtendTTLRequest struct {
	TTLSeconds int `json:"ttl"`
}

// ExecRequest is the body of POST /ship/{id}/exec.
type ExecRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ExecResponse mirrors a Ship's own exec response shape.
type ExecResponse struct {
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionID     string         `json:"execution_id,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SessionResponse represents a Session in API responses.
type SessionResponse struct {
	SessionID    string    `json:"session_id"`
	ShipID       string    `json:"ship_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	InitialTTL   int       `json:"initial_ttl"`
}

// HistoryEntryResponse represents one ExecutionHistory row.
type HistoryEntryResponse struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	ShipID          string    `json:"ship_id"`
	ExecType        string    `json:"exec_type"`
	Code            string    `json:"code"`
	Success         bool      `json:"success"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Output          *string   `json:"output,omitempty"`
	Error           *string   `json:"error,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryListResponse is the body of GET /sessions/{id}/history.
type HistoryListResponse struct {
	Items []HistoryEntryResponse `json:"items"`
	Total int                    `json:"total"`
}

// AnnotateHistoryRequest is the body of PATCH /sessions/{id}/history/{execId}.
type AnnotateHistoryRequest struct {
	Description *string `json:"description,omitempty"`
	Tags        *string `json:"tags,omitempty"` // comma-joined set; split into individual tags before storing
	Notes       *string `json:"notes,omitempty"`
}

// StatResponse is the body of GET /stat and GET /stat/overview.
type StatResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	WarmPool int            `json:"warm_pool"`
}

// UploadFileResponse is the body returned after a file upload.
type UploadFileResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Error    string `json:"error,omitempty"`
}
