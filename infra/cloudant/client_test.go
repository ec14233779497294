package cloudant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/model"
	"github.com/resqmeals/gateway/core/store"
	"github.com/resqmeals/gateway/infra/logger"
)

type rotatingTokens struct {
	current   string
	refreshed int
}

func (r *rotatingTokens) Token(context.Context) (string, error) { return r.current, nil }

func (r *rotatingTokens) Refresh(_ context.Context, rejected string) (string, error) {
	r.refreshed++
	if r.current == rejected {
		r.current = rejected + "-new"
	}
	return r.current, nil
}

func newClient(url string, tokens *rotatingTokens) *Client {
	return New(Config{BaseURL: url}, tokens, logger.NopLogger{})
}

func TestFindPostsSelector(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/charities/_find", r.URL.Path)
		assert.Equal(t, "Bearer t1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"docs":[{"_id":"c1","type":"charity","name":"Food Bank"}]}`))
	}))
	defer srv.Close()

	sel := store.Where("type", "charity").In("accepts", "hot_prepared_food")
	docs, err := newClient(srv.URL, &rotatingTokens{current: "t1"}).Find(context.Background(), "charities", sel, 50)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c1", docs[0]["_id"])
	assert.Equal(t, float64(50), got["limit"])
	assert.Equal(t, map[string]any{
		"type":    "charity",
		"accepts": map[string]any{"$in": []any{"hot_prepared_food"}},
	}, got["selector"])
	assert.NotContains(t, got, "fields")
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drivers/d-9", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","reason":"missing"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, &rotatingTokens{}).Get(context.Background(), "drivers", "d-9")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestPutWithoutIDMakesNoRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, &rotatingTokens{}).Put(context.Background(), "audit", map[string]any{"type": "audit"})
	assert.ErrorIs(t, err, fault.ErrValidation)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestPutTypedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/audit/audit:20250101T000000.000000Z:r1", r.URL.Path)
		var doc map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, "audit", doc["type"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true,"id":"audit:20250101T000000.000000Z:r1","rev":"1-abc"}`))
	}))
	defer srv.Close()

	rec := model.AuditRecord{ID: "audit:20250101T000000.000000Z:r1", Type: model.AuditType, RestaurantID: "r1"}
	ack, err := newClient(srv.URL, &rotatingTokens{}).Put(context.Background(), "audit", rec)
	require.NoError(t, err)
	assert.Equal(t, store.Ack{OK: true, ID: rec.ID, Rev: "1-abc"}, ack)
}

func TestPutConflictIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"conflict"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, &rotatingTokens{}).Put(context.Background(), "audit", map[string]any{"_id": "x"})
	assert.ErrorIs(t, err, fault.ErrTransport)
	assert.Contains(t, err.Error(), "conflict")
}

func TestUnauthorizedRefreshesOnce(t *testing.T) {
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer old-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"_id":"c1"}`))
	}))
	defer srv.Close()

	tokens := &rotatingTokens{current: "old"}
	doc, err := newClient(srv.URL, tokens).Get(context.Background(), "charities", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", doc["_id"])
	assert.Equal(t, []string{"Bearer old", "Bearer old-new"}, auths)
	assert.Equal(t, 1, tokens.refreshed)
}

func TestUnauthorizedTwicePropagates(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &rotatingTokens{current: "old"}
	_, err := newClient(srv.URL, tokens).Find(context.Background(), "drivers", store.Where("type", "driver"), 50)
	assert.ErrorIs(t, err, fault.ErrTransport)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, tokens.refreshed)
}

func TestMissingBaseURL(t *testing.T) {
	_, err := New(Config{}, nil, logger.NopLogger{}).Find(context.Background(), "charities", nil, 1)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}
