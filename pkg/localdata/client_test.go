package localdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL))
}

func TestSearch(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, defaultHost, r.Header.Get("X-RapidAPI-Host"))

		q := r.URL.Query()
		assert.Equal(t, "24 hour plumber in Dallas, TX", q.Get("query"))
		assert.Equal(t, "us", q.Get("region"))
		assert.Equal(t, "50", q.Get("limit"))

		json.NewEncoder(w).Encode(searchResponse{
			Status: "OK",
			Data: []Business{
				{
					BusinessID:  "biz-1",
					Name:        "Metro Plumbing",
					PhoneNumber: "(214) 555-0142",
					City:        "Dallas",
					State:       "TX",
					Zipcode:     "75201",
					Rating:      4.8,
					ReviewCount: 1010,
					WorkingHours: map[string][]string{
						"Monday": {"Open 24 hours"},
					},
				},
			},
		})
	})

	got, err := c.Search(context.Background(), SearchRequest{
		Query: "24 hour plumber in Dallas, TX",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "biz-1", got[0].ID())
	assert.Equal(t, "75201", got[0].Zip())
	assert.Equal(t, 1010, got[0].ReviewCount)
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := NewClient("test-key")
	_, err := c.Search(context.Background(), SearchRequest{})
	require.Error(t, err)
}

func TestSearch_RateLimited(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"Too many requests"}`))
	})

	_, err := c.Search(context.Background(), SearchRequest{Query: "electrician in Austin, TX"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestBusinessDetails(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/business-details", r.URL.Path)
		assert.Equal(t, "biz-1", r.URL.Query().Get("business_id"))
		json.NewEncoder(w).Encode(searchResponse{
			Status: "OK",
			Data: []Business{
				{BusinessID: "biz-1", Name: "Metro Plumbing", Website: "https://metroplumbing.example"},
			},
		})
	})

	got, err := c.BusinessDetails(context.Background(), "biz-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://metroplumbing.example", got.Website)
}

func TestBusinessDetails_Empty(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Status: "OK"})
	})

	got, err := c.BusinessDetails(context.Background(), "biz-missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPlaceIDFallback(t *testing.T) {
	b := Business{PlaceID: "place-9", PostalCode: "30301"}
	assert.Equal(t, "place-9", b.ID())
	assert.Equal(t, "30301", b.Zip())
}
