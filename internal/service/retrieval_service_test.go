package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedding struct {
	err error
}

func (f *fakeEmbedding) CreateEmbedding(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func newESServer(t *testing.T, handler func(body map[string]interface{}) (int, string)) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		status, resp := handler(body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestRetrieve_NormalizesScoresAndFiltersByPlugin(t *testing.T) {
	var captured map[string]interface{}
	client := newESServer(t, func(body map[string]interface{}) (int, string) {
		captured = body
		return http.StatusOK, `{"hits":{"hits":[
			{"_score": 8.0, "_source": {"plugin_id":"legal","filename":"GDPR.pdf","page":"47","section":"Article 83","text":"Administrative fines up to 4%."}},
			{"_score": 2.0, "_source": {"plugin_id":"legal","filename":"GDPR.pdf","page":"12","text":"Definitions."}}
		]}}`
	})
	svc := NewRetrievalService(&fakeEmbedding{}, client, "sme_chunks")

	chunks, err := svc.Retrieve(context.Background(), "GDPR penalties", "legal", 5)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1.0, chunks[0].RelevanceScore)
	assert.Equal(t, 0.25, chunks[1].RelevanceScore)
	assert.Equal(t, "Article 83", chunks[0].Section)

	knn := captured["knn"].(map[string]interface{})
	filter := knn["filter"].(map[string]interface{})["term"].(map[string]interface{})
	assert.Equal(t, "legal", filter["plugin_id"])
	assert.EqualValues(t, 5, captured["size"])
}

func TestRetrieve_NoHitsIsEmptyNotError(t *testing.T) {
	client := newESServer(t, func(map[string]interface{}) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[]}}`
	})
	chunks, err := NewRetrievalService(&fakeEmbedding{}, client, "sme_chunks").Retrieve(context.Background(), "q", "legal", 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.NotNil(t, chunks)
}

func TestRetrieve_IndexErrorIsReturned(t *testing.T) {
	client := newESServer(t, func(map[string]interface{}) (int, string) {
		return http.StatusInternalServerError, `{"error":"index failure"}`
	})
	_, err := NewRetrievalService(&fakeEmbedding{}, client, "sme_chunks").Retrieve(context.Background(), "q", "legal", 5)
	assert.Error(t, err)
}

func TestRetrieve_EmbeddingErrorIsReturned(t *testing.T) {
	client := newESServer(t, func(map[string]interface{}) (int, string) {
		t.Fatal("es should not be called")
		return 0, ""
	})
	_, err := NewRetrievalService(&fakeEmbedding{err: errors.New("down")}, client, "sme_chunks").Retrieve(context.Background(), "q", "legal", 5)
	assert.Error(t, err)
}

func TestNormalizeScore(t *testing.T) {
	assert.Equal(t, 0.0, normalizeScore(1, 0))
	assert.Equal(t, 0.0, normalizeScore(-1, 3))
	assert.Equal(t, 0.3333, normalizeScore(1, 3))
}
