package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps test runs snappy.
func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond}
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), fastRetry())
}

// --- ServerRecord ---

func TestServerRecord_ModifiedMillis_String(t *testing.T) {
	var sr ServerRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","updated_at":"2024-06-01T12:00:00Z"}`), &sr))
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), sr.ModifiedMillis())
}

func TestServerRecord_ModifiedMillis_EpochNumber(t *testing.T) {
	var sr ServerRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","updated_at":1717243200}`), &sr))
	assert.Equal(t, int64(1717243200000), sr.ModifiedMillis())
}

func TestServerRecord_ModifiedMillis_Absent(t *testing.T) {
	var sr ServerRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a"}`), &sr))
	assert.Equal(t, int64(0), sr.ModifiedMillis())
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/recipes", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"srv123","data":{"name":"IPA"},"updated_at":"2024-06-01T12:00:00Z"}`))
	})

	sr, err := c.Create(context.Background(), json.RawMessage(`{"name":"IPA"}`))
	require.NoError(t, err)
	assert.Equal(t, "srv123", sr.ID)
	assert.JSONEq(t, `{"name":"IPA"}`, string(sr.Data))
}

func TestCreate_ValidationErrorNotRetried(t *testing.T) {
	var hits atomic.Int32

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"name required"}`))
	})

	_, err := c.Create(context.Background(), json.RawMessage(`{}`))
	assert.True(t, syncerr.IsValidation(err))
	assert.Equal(t, int32(1), hits.Load(), "4xx must not be retried")
}

func TestCreate_RetriesOn5xx(t *testing.T) {
	var hits atomic.Int32

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"srv1","data":{}}`))
	})

	sr, err := c.Create(context.Background(), json.RawMessage(`{"name":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "srv1", sr.ID)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCreate_NetworkErrorAfterRetriesExhausted(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Create(context.Background(), json.RawMessage(`{"name":"x"}`))
	assert.True(t, syncerr.IsNetwork(err))
}

// --- Update ---

func TestUpdate_Success(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/recipes/srv1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"srv1","data":{"name":"Stout"}}`))
	})

	sr, err := c.Update(context.Background(), "srv1", json.RawMessage(`{"name":"Stout"}`))
	require.NoError(t, err)
	assert.Equal(t, "srv1", sr.ID)
}

func TestUpdate_NotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Update(context.Background(), "ghost", json.RawMessage(`{"name":"x"}`))
	assert.True(t, syncerr.IsNotFound(err))
}

// --- Delete ---

func TestDelete_Success(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, c.Delete(context.Background(), "srv1"))
}

func TestDelete_NotFoundIsSuccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	assert.NoError(t, c.Delete(context.Background(), "already-gone"))
}

func TestDelete_ServerErrorIsNetwork(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := c.Delete(context.Background(), "srv1")
	assert.True(t, syncerr.IsNetwork(err))
}

// --- Get / List ---

func TestGet_Success(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/recipes/srv1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"srv1","data":{"name":"IPA"}}`))
	})

	sr, err := c.Get(context.Background(), "srv1")
	require.NoError(t, err)
	assert.Equal(t, "srv1", sr.ID)
}

func TestList_PassesPaging(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("page_size"))
		_, _ = w.Write([]byte(`{"records":[{"id":"a","data":{}},{"id":"b","data":{}}],"pagination":{"page":3,"page_size":50,"total":102,"has_more":false}}`))
	})

	records, pagination, err := c.List(context.Background(), 3, 50)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	require.NotNil(t, pagination)
	assert.Equal(t, 102, pagination.Total)
	assert.False(t, pagination.HasMore)
}

func TestUnauthorized_MapsToAuthenticationRequired(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Get(context.Background(), "srv1")
	assert.True(t, syncerr.IsAuthenticationRequired(err))
}

// --- sanitizeBody ---

func TestSanitizeBody_Truncates(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'a'
	}

	assert.Len(t, sanitizeBody(long), 256)
}

func TestSanitizeBody_StripsControlChars(t *testing.T) {
	out := sanitizeBody([]byte("bad\x1b[31mstuff"))
	assert.NotContains(t, out, "\x1b")
}
