package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QdrantOptions configures the Qdrant REST client.
type QdrantOptions struct {
	Endpoint   string
	APIKey     string
	Collection string
	VectorSize int
	Distance   string
	Timeout    time.Duration
}

// QdrantIndex stores all notebooks in one Qdrant collection, filtered by the
// notebook_id payload key.
type QdrantIndex struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	collection string
	vectorSize int
	distance   string
}

// recordNamespace derives Qdrant point ids, which must be UUIDs or integers.
var recordNamespace = uuid.MustParse("6f2c6c9e-3d0b-4d55-9a55-6a1f5e4b9c21")

// NewQdrantIndex returns an index talking to Qdrant over REST.
func NewQdrantIndex(opts QdrantOptions) *QdrantIndex {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://localhost:6333"
	}
	if !strings.HasPrefix(opts.Endpoint, "http") {
		opts.Endpoint = "http://" + opts.Endpoint
	}
	if opts.Collection == "" {
		opts.Collection = "cramwell_index"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &QdrantIndex{
		client:     &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		vectorSize: opts.VectorSize,
		distance:   formatDistance(opts.Distance),
	}
}

func formatDistance(value string) string {
	switch strings.ToLower(value) {
	case "dot", "ip":
		return "Dot"
	case "euclid", "l2":
		return "Euclid"
	default:
		return "Cosine"
	}
}

func (s *QdrantIndex) EnsureIndex(ctx context.Context) error {
	path := "/collections/" + s.collection
	resp, err := s.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	drain(resp)
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.vectorSize,
			"distance": s.distance,
		},
	}
	if err := s.expectOK(ctx, http.MethodPut, path, body, "create collection"); err != nil {
		return err
	}

	index := map[string]interface{}{
		"field_name":   "notebook_id",
		"field_schema": "keyword",
	}
	return s.expectOK(ctx, http.MethodPut, path+"/index?wait=true", index, "create payload index")
}

func (s *QdrantIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		if len(rec.Vector) != s.vectorSize {
			return fmt.Errorf("record %s has dimension %d, collection expects %d", rec.ID, len(rec.Vector), s.vectorSize)
		}
		points = append(points, map[string]interface{}{
			"id":     uuid.NewSHA1(recordNamespace, []byte(rec.ID)).String(),
			"vector": rec.Vector,
			"payload": map[string]interface{}{
				"record_id":    rec.ID,
				"notebook_id":  rec.Metadata.NotebookID,
				"text":         rec.Metadata.Text,
				"filename":     rec.Metadata.Filename,
				"processed_at": rec.Metadata.ProcessedAt,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
	return s.expectOK(ctx, http.MethodPut, path, map[string]interface{}{"points": points}, "upsert")
}

func (s *QdrantIndex) Query(ctx context.Context, filter TenantFilter, vector []float32, topK int) ([]VectorMatch, error) {
	if !filter.Valid() {
		return nil, errInvalidFilter
	}
	if topK <= 0 {
		topK = 5
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vectors": false,
		"filter":       tenantFilterBody(filter),
	}

	resp, err := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qdrant search failed: %s %s", resp.Status, string(raw))
	}

	var searchResp struct {
		Result []struct {
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(searchResp.Result))
	for _, item := range searchResp.Result {
		meta := RecordMetadata{
			NotebookID:  payloadString(item.Payload, "notebook_id"),
			Text:        payloadString(item.Payload, "text"),
			Filename:    payloadString(item.Payload, "filename"),
			ProcessedAt: payloadString(item.Payload, "processed_at"),
		}
		if meta.NotebookID != filter.NotebookID() {
			continue
		}
		matches = append(matches, VectorMatch{
			ID:       payloadString(item.Payload, "record_id"),
			Score:    item.Score,
			Metadata: meta,
		})
	}
	return matches, nil
}

func (s *QdrantIndex) Delete(ctx context.Context, filter TenantFilter) error {
	if !filter.Valid() {
		return errInvalidFilter
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection)
	return s.expectOK(ctx, http.MethodPost, path, map[string]interface{}{"filter": tenantFilterBody(filter)}, "delete")
}

func (s *QdrantIndex) Ready() bool {
	return s.client != nil
}

func tenantFilterBody(filter TenantFilter) map[string]interface{} {
	return map[string]interface{}{
		"must": []map[string]interface{}{
			{
				"key":   "notebook_id",
				"match": map[string]interface{}{"value": filter.NotebookID()},
			},
		},
	}
}

func payloadString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func (s *QdrantIndex) expectOK(ctx context.Context, method, path string, body interface{}, op string) error {
	resp, err := s.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant %s failed: %s %s", op, resp.Status, string(raw))
	}
	return nil
}

func (s *QdrantIndex) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	return s.client.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
