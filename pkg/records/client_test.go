package records_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/errs"
	"github.com/gridbase/gridbase/pkg/records"
)

func TestClient_Record(t *testing.T) {
	t.Parallel()

	var gotAuth, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "rec_1",
			"fields": map[string]any{
				"fld_status": "open",
				"fld_count":  float64(3),
			},
		})
	}))
	defer server.Close()

	client := records.NewClient(server.URL, "svc-token", slog.Default())

	fields, err := client.Record(context.Background(), "tbl_tasks", "rec_1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer svc-token", gotAuth)
	assert.Equal(t, "/api/tables/tbl_tasks/records/rec_1", gotPath)
	assert.Equal(t, "open", fields["fld_status"])
	assert.Equal(t, float64(3), fields["fld_count"])
}

func TestClient_UpdateRecord(t *testing.T) {
	t.Parallel()

	var gotMethod string

	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := records.NewClient(server.URL, "", slog.Default())

	err := client.UpdateRecord(context.Background(), "tbl_tasks", "rec_1", map[string]any{
		"fld_status": "done",
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)

	fields, ok := gotBody["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "done", fields["fld_status"])
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized is misconfigured",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.True(t, errs.IsMisconfigured(err))
			},
		},
		{
			name:   "not found is a config error",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.True(t, errs.IsConfig(err))
			},
		},
		{
			name:   "server error is transient",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				t.Helper()
				assert.Equal(t, errs.CategoryTransient, errs.CategoryOf(err))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := records.NewClient(server.URL, "svc-token", slog.Default())

			_, err := client.Record(context.Background(), "tbl_tasks", "rec_missing")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}
