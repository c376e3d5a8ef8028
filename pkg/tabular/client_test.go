package tabular_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/ports"
	"github.com/pocketcoach/converse/pkg/tabular"
)

func TestClient_QueryFollowsContinuation(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		assert.Equal(t, "application/json;odata=nometadata", r.Header.Get("Accept"))
		assert.Equal(t, "2013-08-15", r.Header.Get("x-ms-version"))

		if r.URL.Query().Get("NextPartitionKey") == "" {
			w.Header().Set("x-ms-continuation-NextPartitionKey", "pk2")
			w.Header().Set("x-ms-continuation-NextRowKey", "rk2")
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{"PartitionKey": "sheet", "RowKey": "1", "ID": "L1", "Points": 5},
				},
			})
			return
		}
		assert.Equal(t, "rk2", r.URL.Query().Get("NextRowKey"))
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"PartitionKey": "sheet", "RowKey": "2", "ID": "L2", "Hidden": true},
			},
		})
	}))
	defer srv.Close()

	c, err := tabular.NewClient(srv.URL + "/Content?sig=abc")
	require.NoError(t, err)

	var got []ports.Record
	res, err := c.Query(context.Background(), "PartitionKey eq 'sheet'", nil, func(rows []ports.Record) error {
		got = append(got, rows...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.False(t, res.Truncated)
	require.Len(t, got, 2)
	assert.Equal(t, "L1", got[0]["ID"])
	assert.Equal(t, "5", got[0]["Points"], "numeric columns arrive stringified")
	assert.Equal(t, "true", got[1]["Hidden"])
	assert.Contains(t, requests[0], "$filter=")
}

func TestClient_QueryStopsOnPageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-continuation-NextPartitionKey", "more")
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{"ID": "L1"}},
		})
	}))
	defer srv.Close()

	c, err := tabular.NewClient(srv.URL + "/Content?sig=abc")
	require.NoError(t, err)

	stop := errors.New("stop")
	res, err := c.Query(context.Background(), "", nil, func([]ports.Record) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.True(t, res.Truncated)
	assert.Equal(t, 1, res.Rows)
}

func TestClient_GetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := tabular.NewClient(srv.URL + "/Data?sig=abc")
	require.NoError(t, err)

	rec, err := c.Get(context.Background(), "user", "row")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestClient_InsertGeneratesRowKey(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := tabular.NewClient(srv.URL + "/Data?sig=abc")
	require.NoError(t, err)

	err = c.Insert(context.Background(), ports.Record{"PartitionKey": "user", "ID": "Mood", "Value": "4"})
	require.NoError(t, err)
	assert.Equal(t, "Mood", got["ID"])
	assert.NotEmpty(t, got["RowKey"])
}

func TestClient_WriteRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := tabular.NewClient(srv.URL+"/Data?sig=abc",
		tabular.WithRetryPolicy(func(attempts int, err error) bool { return attempts < 5 }))
	require.NoError(t, err)

	err = c.Insert(context.Background(), ports.Record{"PartitionKey": "user", "ID": "Mood"})
	assert.NoError(t, err)
	assert.Equal(t, 3, hits)
}

func TestClient_MergeTargetsEntity(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := tabular.NewClient(srv.URL + "/Data?sig=abc")
	require.NoError(t, err)

	err = c.Merge(context.Background(), ports.Record{"PartitionKey": "user", "RowKey": "r1", "Value": "4"})
	require.NoError(t, err)
	assert.Equal(t, "MERGE", method)
	assert.True(t, strings.Contains(path, "PartitionKey='user'"))
	assert.True(t, strings.Contains(path, "RowKey='r1'"))
}

func TestGenerateRowKey_SortsNewestFirst(t *testing.T) {
	early := tabular.GenerateRowKey(time.UnixMilli(1000))
	late := tabular.GenerateRowKey(time.UnixMilli(2000))
	assert.Less(t, late, early, "later writes must sort before earlier ones")
}

func TestMemory_RoundTrip(t *testing.T) {
	m := tabular.NewMemory(1)
	ctx := context.Background()

	require.NoError(t, m.Insert(ctx, ports.Record{"PartitionKey": "u", "RowKey": "a", "ID": "Mood", "Value": "4"}))
	require.NoError(t, m.Insert(ctx, ports.Record{"PartitionKey": "u", "RowKey": "b", "ID": "Sleep", "Value": "7"}))
	require.NoError(t, m.Insert(ctx, ports.Record{"PartitionKey": "v", "RowKey": "a", "ID": "Other"}))

	var pages int
	var seen []string
	res, err := m.Query(ctx, "PartitionKey eq 'u'", []string{"ID"}, func(rows []ports.Record) error {
		pages++
		for _, r := range rows {
			seen = append(seen, r["ID"])
			assert.Empty(t, r["Value"], "unselected columns are projected away")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 2, pages, "page size 1 yields one page per row")
	assert.Equal(t, []string{"Mood", "Sleep"}, seen)

	rec, err := m.Get(ctx, "u", "a")
	require.NoError(t, err)
	assert.Equal(t, "4", rec["Value"])

	require.NoError(t, m.Merge(ctx, ports.Record{"PartitionKey": "u", "RowKey": "a", "Value": "5"}))
	rec, _ = m.Get(ctx, "u", "a")
	assert.Equal(t, "5", rec["Value"])
	assert.Equal(t, "Mood", rec["ID"], "merge keeps unmentioned columns")
}
