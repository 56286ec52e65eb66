package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wanghui5801/fleetmon/internal/models"
)

func stubGeo(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"success","countryCode":"UN"}`))
	}))
	t.Cleanup(srv.Close)
	orig := geoEndpoint
	geoEndpoint = srv.URL
	t.Cleanup(func() { geoEndpoint = orig })
}

func TestReportOncePostsSnapshot(t *testing.T) {
	stubGeo(t)

	var got models.UpdateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/nodes/update", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	rep := NewReporter(NewCollector("edge-1", "SG"), srv.URL, nil)
	require.NoError(t, rep.ReportOnce(context.Background()))
	require.Equal(t, "edge-1", got.Name)
	require.Equal(t, models.NodeID("edge-1"), got.ID)
	require.Equal(t, "SG", got.Location)
}

func TestReportOnceNotAdmitted(t *testing.T) {
	stubGeo(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rep := NewReporter(NewCollector("edge-1", "SG"), srv.URL, nil)
	err := rep.ReportOnce(context.Background())
	require.ErrorContains(t, err, "not admitted")
}
