package partner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pageOf(n, offset int) []map[string]interface{} {
	out := make([]map[string]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{
			"external_id":      "TX" + strconv.Itoa(offset+i),
			"status":           "approved",
			"amount":           "10.25",
			"merchant_ext_id":  "M1",
			"click_ext_id":     "C1",
			"transaction_date": "2026-02-28T10:00:00Z",
		}
	}
	return out
}

func TestHTTPSource_Paginates(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "2026-02-01T00:00:00Z", r.URL.Query().Get("since"))
		pages = append(pages, r.URL.Query().Get("page"))

		var body map[string]interface{}
		switch r.URL.Query().Get("page") {
		case "1":
			body = map[string]interface{}{"records": pageOf(2, 0), "has_more": true}
		default:
			body = map[string]interface{}{"records": pageOf(1, 2), "has_more": false}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPConfig{
		Network:    "cuelinks",
		URL:        srv.URL + "/transactions",
		AuthHeader: "X-API-KEY",
		AuthValue:  "secret",
		PageSize:   2,
	}, discardLogger())

	records, err := src.Fetch(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, pages)
	require.Len(t, records, 3)
	assert.Equal(t, "TX0", records[0].ExternalID)
	assert.Equal(t, "cuelinks", records[0].Network)
	assert.Equal(t, "10.25", records[0].Amount.String())
	assert.Equal(t, "cuelinks", src.Network())
}

func TestHTTPSource_ReturnsPartialResultsOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"records": pageOf(2, 0), "has_more": true})
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPConfig{Network: "admitad", URL: srv.URL, PageSize: 2}, discardLogger())

	records, err := src.Fetch(context.Background(), time.Now())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "admitad page 2")
	assert.Len(t, records, 2)
}

func TestHTTPSource_StopsAtMaxPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"records": pageOf(1, calls), "has_more": true})
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPConfig{Network: "vcommission", URL: srv.URL, PageSize: 1, MaxPages: 3}, discardLogger())

	records, err := src.Fetch(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, 3, calls)
}

func TestHTTPSource_PageEndConditions(t *testing.T) {
	tests := []struct {
		name      string
		firstPage map[string]interface{}
		wantPages []string
		wantCount int
	}{
		{
			name:      "full page without has_more keeps paging",
			firstPage: map[string]interface{}{"records": pageOf(2, 0)},
			wantPages: []string{"1", "2"},
			wantCount: 3,
		},
		{
			name:      "full page with has_more false stops",
			firstPage: map[string]interface{}{"records": pageOf(2, 0), "has_more": false},
			wantPages: []string{"1"},
			wantCount: 2,
		},
		{
			name:      "short page with has_more true stops",
			firstPage: map[string]interface{}{"records": pageOf(1, 0), "has_more": true},
			wantPages: []string{"1"},
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pages []string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				pages = append(pages, r.URL.Query().Get("page"))
				if r.URL.Query().Get("page") == "1" {
					_ = json.NewEncoder(w).Encode(tt.firstPage)
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"records": pageOf(1, 2)})
			}))
			defer srv.Close()

			src := NewHTTPSource(HTTPConfig{Network: "admitad", URL: srv.URL, PageSize: 2}, discardLogger())

			records, err := src.Fetch(context.Background(), time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.wantPages, pages)
			assert.Len(t, records, tt.wantCount)
		})
	}
}
