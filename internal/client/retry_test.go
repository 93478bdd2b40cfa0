package client

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int64
		status    int
		wantHits  int64
		wantErr   bool
		wantError Kind
	}{
		{name: "recovers from server errors", failures: 2, status: http.StatusInternalServerError, wantHits: 3},
		{name: "gives up after max tries", failures: 10, status: http.StatusInternalServerError, wantHits: 3, wantErr: true, wantError: KindServerError},
		{name: "does not retry not found", failures: 10, status: http.StatusNotFound, wantHits: 1, wantErr: true, wantError: KindNotFound},
		{name: "does not retry unknown status", failures: 10, status: http.StatusServiceUnavailable, wantHits: 1, wantErr: true, wantError: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int64
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = w.Write([]byte(`{"result": {"id": 5}}`))
			}, nil)

			got, err := Retry(context.Background(), DefaultRetryAttempts, func(ctx context.Context) (item, error) {
				return Get[item](ctx, c, "/api/v1/items/5")
			})

			assert.Equal(t, tt.wantHits, hits.Load())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantError, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, item{ID: 5}, got)
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&APIError{Kind: KindNetwork}))
	assert.True(t, Retryable(&APIError{Kind: KindServerError}))
	assert.False(t, Retryable(&APIError{Kind: KindUnauthorized}))
	assert.False(t, Retryable(&APIError{Kind: KindBadRequest}))
	assert.False(t, Retryable(context.Canceled))
}
