package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type qdrantCall struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// fakeQdrant records requests and serves canned responses.
type fakeQdrant struct {
	mu         sync.Mutex
	calls      []qdrantCall
	exists     bool
	searchResp string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, qdrantCall{Method: r.Method, Path: r.URL.RequestURI(), Body: body})
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && !f.exists:
		w.WriteHeader(http.StatusNotFound)
	case r.URL.Path == "/collections/cramwell_index/points/search":
		_, _ = w.Write([]byte(f.searchResp))
	default:
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func newFakeQdrant(t *testing.T, fake *fakeQdrant) *QdrantIndex {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return NewQdrantIndex(QdrantOptions{Endpoint: server.URL, VectorSize: 2})
}

func TestQdrant_EnsureIndexCreatesCollection(t *testing.T) {
	fake := &fakeQdrant{}
	index := newFakeQdrant(t, fake)

	require.NoError(t, index.EnsureIndex(context.Background()))
	require.Len(t, fake.calls, 3)
	assert.Equal(t, "/collections/cramwell_index", fake.calls[1].Path)
	assert.Equal(t, "Cosine", fake.calls[1].Body["vectors"].(map[string]interface{})["distance"])
	assert.Equal(t, "/collections/cramwell_index/index?wait=true", fake.calls[2].Path)
	assert.Equal(t, "notebook_id", fake.calls[2].Body["field_name"])

	fake.calls = nil
	fake.exists = true
	require.NoError(t, index.EnsureIndex(context.Background()))
	assert.Len(t, fake.calls, 1)
}

func TestQdrant_UpsertUsesDerivedPointIDs(t *testing.T) {
	fake := &fakeQdrant{}
	index := newFakeQdrant(t, fake)

	err := index.Upsert(context.Background(), []VectorRecord{{
		ID:       "nb_0_abcdef12",
		Vector:   []float32{0.5, 0.5},
		Metadata: RecordMetadata{NotebookID: "nb", Text: "hello", Filename: "a.pdf"},
	}})
	require.NoError(t, err)

	points := fake.calls[0].Body["points"].([]interface{})
	point := points[0].(map[string]interface{})
	assert.Equal(t, uuid.NewSHA1(recordNamespace, []byte("nb_0_abcdef12")).String(), point["id"])
	payload := point["payload"].(map[string]interface{})
	assert.Equal(t, "nb_0_abcdef12", payload["record_id"])
	assert.Equal(t, "nb", payload["notebook_id"])

	err = index.Upsert(context.Background(), []VectorRecord{{ID: "bad", Vector: []float32{1}}})
	assert.Error(t, err)
}

func TestQdrant_QueryFiltersByTenant(t *testing.T) {
	fake := &fakeQdrant{searchResp: `{"result":[
		{"score":0.9,"payload":{"record_id":"nb_0_x","notebook_id":"nb","text":"mine"}},
		{"score":0.8,"payload":{"record_id":"other_0_x","notebook_id":"other","text":"theirs"}}
	]}`}
	index := newFakeQdrant(t, fake)

	filter, err := NewTenantFilter("nb")
	require.NoError(t, err)
	matches, err := index.Query(context.Background(), filter, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "mine", matches[0].Metadata.Text)
	assert.Equal(t, "nb_0_x", matches[0].ID)

	must := fake.calls[0].Body["filter"].(map[string]interface{})["must"].([]interface{})
	cond := must[0].(map[string]interface{})
	assert.Equal(t, "notebook_id", cond["key"])
	assert.Equal(t, "nb", cond["match"].(map[string]interface{})["value"])
	assert.EqualValues(t, 3, fake.calls[0].Body["limit"])
}

func TestQdrant_DeleteRequiresFilter(t *testing.T) {
	fake := &fakeQdrant{}
	index := newFakeQdrant(t, fake)

	assert.ErrorIs(t, index.Delete(context.Background(), TenantFilter{}), errInvalidFilter)
	assert.Empty(t, fake.calls)

	filter, _ := NewTenantFilter("nb")
	require.NoError(t, index.Delete(context.Background(), filter))
	assert.Equal(t, "/collections/cramwell_index/points/delete?wait=true", fake.calls[0].Path)
}
