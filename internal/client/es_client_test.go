package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestESClient(t *testing.T, handler http.HandlerFunc) *ESClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return &ESClient{Client: es, logger: zap.NewNop()}
}

func TestESClient_IndexDocument(t *testing.T) {
	var gotPath, gotBody string
	c := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := c.IndexDocument(context.Background(), "auth-events", "evt-1", map[string]string{"type": "code_issued"})
	require.NoError(t, err)
	assert.Equal(t, "/auth-events/_doc/evt-1", gotPath)
	assert.Contains(t, gotBody, `"code_issued"`)
}

func TestESClient_IndexDocumentError(t *testing.T) {
	c := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"mapper_parsing_exception","reason":"failed to parse"}}`))
	})

	err := c.IndexDocument(context.Background(), "auth-events", "evt-1", map[string]string{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to parse"))
}

func TestESClient_HealthCheck(t *testing.T) {
	c := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cluster_name":"test","version":{"number":"8.19.0"}}`))
	})
	assert.NoError(t, c.HealthCheck(context.Background()))
}
