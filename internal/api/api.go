// Package api talks to the recipe server's REST API. All calls run
// under a bounded retry policy; transient transport failures and 5xx
// responses are retried, everything else surfaces immediately.
package api

import (
	"context"
	"encoding/json"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/timeutil"
)

//go:generate mockgen -source=api.go -destination=mocks/mock_api.go -package=mocks

// ServerRecord is the wire representation of a record. The server
// sends timestamps as either RFC 3339 strings or epoch numbers
// depending on endpoint age, so UpdatedAt stays loosely typed and is
// normalized through ModifiedMillis.
type ServerRecord struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt any             `json:"updated_at,omitempty"`
}

// ModifiedMillis returns the record's last-modified time in epoch
// milliseconds, or 0 when absent or unparseable.
func (sr *ServerRecord) ModifiedMillis() int64 {
	ms, err := timeutil.ToEpochMillis(sr.UpdatedAt)
	if err != nil {
		return 0
	}

	return ms
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	HasMore  bool `json:"has_more"`
}

// ServerAPI is the engine's view of the server. Delete and Update are
// idempotent with respect to repeated calls: a 404 on delete is
// reported as success.
type ServerAPI interface {
	Create(ctx context.Context, payload json.RawMessage) (*ServerRecord, error)
	Update(ctx context.Context, id string, payload json.RawMessage) (*ServerRecord, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*ServerRecord, error)
	List(ctx context.Context, page, pageSize int) ([]ServerRecord, *Pagination, error)
}
