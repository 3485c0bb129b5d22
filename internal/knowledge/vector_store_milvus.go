package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	milvusFieldID          = "id"
	milvusFieldNotebookID  = "notebook_id"
	milvusFieldText        = "text"
	milvusFieldFilename    = "filename"
	milvusFieldProcessedAt = "processed_at"
	milvusFieldVector      = "vector"
)

// MilvusOptions configures the Milvus client.
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	VectorSize int
	Distance   string
	UseTLS     bool
}

// MilvusIndex keeps every notebook in a single collection; the notebook_id
// scalar field carries the tenant and every search or delete filters on it.
type MilvusIndex struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string
}

// NewMilvusIndex connects to Milvus and loads the collection.
func NewMilvusIndex(ctx context.Context, opts MilvusOptions) (*MilvusIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "cramwell_index"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return newMilvusIndexWithClient(milvusClient, opts), nil
}

func newMilvusIndexWithClient(c client.Client, opts MilvusOptions) *MilvusIndex {
	return &MilvusIndex{
		milvusClient: c,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
	}
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

func (s *MilvusIndex) EnsureIndex(ctx context.Context) error {
	exists, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "notebook chunk embeddings",
			Fields: []*entity.Field{
				{
					Name:       milvusFieldID,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "256"},
				},
				{
					Name:       milvusFieldNotebookID,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       milvusFieldText,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "65535"},
				},
				{
					Name:       milvusFieldFilename,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "512"},
				},
				{
					Name:       milvusFieldProcessedAt,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       milvusFieldVector,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": strconv.Itoa(s.vectorSize)},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		index, err := entity.NewIndexHNSW(entity.MetricType(s.distance), 8, 64)
		if err != nil {
			return fmt.Errorf("failed to build index params: %w", err)
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, milvusFieldVector, index, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (s *MilvusIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	notebooks := make([]string, 0, len(records))
	texts := make([]string, 0, len(records))
	filenames := make([]string, 0, len(records))
	processed := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))

	for _, rec := range records {
		if len(rec.Vector) != s.vectorSize {
			return fmt.Errorf("record %s has dimension %d, collection expects %d", rec.ID, len(rec.Vector), s.vectorSize)
		}
		ids = append(ids, rec.ID)
		notebooks = append(notebooks, rec.Metadata.NotebookID)
		texts = append(texts, rec.Metadata.Text)
		filenames = append(filenames, rec.Metadata.Filename)
		processed = append(processed, rec.Metadata.ProcessedAt)
		vectors = append(vectors, rec.Vector)
	}

	_, err := s.milvusClient.Insert(ctx, s.collection, "",
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnVarChar(milvusFieldNotebookID, notebooks),
		entity.NewColumnVarChar(milvusFieldText, texts),
		entity.NewColumnVarChar(milvusFieldFilename, filenames),
		entity.NewColumnVarChar(milvusFieldProcessedAt, processed),
		entity.NewColumnFloatVector(milvusFieldVector, s.vectorSize, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	// new rows must be searchable as soon as ingestion returns
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("milvus flush failed: %w", err)
	}
	return nil
}

func (s *MilvusIndex) Query(ctx context.Context, filter TenantFilter, vector []float32, topK int) ([]VectorMatch, error) {
	if !filter.Valid() {
		return nil, errInvalidFilter
	}
	if topK <= 0 {
		topK = 5
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, err
	}

	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		tenantExpr(filter),
		[]string{milvusFieldNotebookID, milvusFieldText, milvusFieldFilename, milvusFieldProcessedAt},
		[]entity.Vector{entity.FloatVector(vector)},
		milvusFieldVector,
		entity.MetricType(s.distance),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}

	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return nil, nil
	}

	var ids []string
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idCol.Data()
	}

	columns := make(map[string][]string, len(result.Fields))
	for _, field := range result.Fields {
		if col, ok := field.(*entity.ColumnVarChar); ok {
			columns[field.Name()] = col.Data()
		}
	}

	matches := make([]VectorMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		meta := RecordMetadata{
			NotebookID:  columnValue(columns[milvusFieldNotebookID], i),
			Text:        columnValue(columns[milvusFieldText], i),
			Filename:    columnValue(columns[milvusFieldFilename], i),
			ProcessedAt: columnValue(columns[milvusFieldProcessedAt], i),
		}
		if meta.NotebookID != filter.NotebookID() {
			continue
		}
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		matches = append(matches, VectorMatch{
			ID:       columnValue(ids, i),
			Score:    score,
			Metadata: meta,
		})
	}
	return matches, nil
}

func (s *MilvusIndex) Delete(ctx context.Context, filter TenantFilter) error {
	if !filter.Valid() {
		return errInvalidFilter
	}
	if err := s.milvusClient.Delete(ctx, s.collection, "", tenantExpr(filter)); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	return nil
}

func (s *MilvusIndex) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

// Close closes the Milvus connection.
func (s *MilvusIndex) Close() error {
	return s.milvusClient.Close()
}

func tenantExpr(filter TenantFilter) string {
	return fmt.Sprintf("%s == %s", milvusFieldNotebookID, strconv.Quote(filter.NotebookID()))
}

func columnValue(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
