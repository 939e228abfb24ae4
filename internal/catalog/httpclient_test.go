package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/palstore/internal/retryx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pals", r.URL.Path)
		assert.Equal(t, "robot", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"p1","name":"Robo","price":0}],"total_count":1,"page":2,"limit":20,"has_more":false}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 5*time.Second, nil)
	page, err := c.Search(context.Background(), Query{Text: "robot", Page: 2, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "p1", page.Items[0].ID)
	assert.True(t, page.Items[0].IsFree())
	assert.Equal(t, 1, page.TotalCount)
}

func TestHTTPClient_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"owned":true}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 5*time.Second, func() string { return "tok123" })
	own, err := c.CheckOwnership(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, own.Owned)
	assert.Equal(t, "Bearer tok123", gotAuth)
}

func TestHTTPClient_APIErrorFromMessageField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 5*time.Second, nil)
	_, err := c.GetByID(context.Background(), "p1")
	require.Error(t, err)

	var aerr *retryx.APIError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, 401, aerr.StatusCode)
	assert.Equal(t, "token expired", aerr.Message)
}

func TestHTTPClient_APIErrorFromErrorField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad query"}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 5*time.Second, nil)
	_, err := c.GetCategories(context.Background())

	var aerr *retryx.APIError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, "bad query", aerr.Message)
}

func TestHTTPClient_RetryAfterHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "9")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 5*time.Second, nil)
	_, err := c.GetTags(context.Background(), Query{})

	var aerr *retryx.APIError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, 9*time.Second, aerr.RetryAfter)

	info := retryx.Classify(err)
	assert.Equal(t, retryx.KindRateLimit, info.Kind)
	assert.Equal(t, 9*time.Second, info.RetryAfter)
}

func TestHTTPClient_NonJSONErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`boom`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 5*time.Second, nil)
	_, err := c.GetLibrary(context.Background(), Query{})

	var aerr *retryx.APIError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, 500, aerr.StatusCode)
	assert.Empty(t, aerr.Message, "classifier falls back to status text")
}
