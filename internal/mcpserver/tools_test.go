package mcpserver

import (
	"context"
	"testing"

	apperrors "github.com/cramwell/backend-go/internal/errors"
	"github.com/cramwell/backend-go/internal/kafka"
	"github.com/cramwell/backend-go/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(ctx context.Context, doc services.SourceDocument) (*services.IngestResult, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.IngestResult), args.Error(1)
}

func (m *mockIngester) IngestObject(ctx context.Context, job kafka.IngestJob) (*services.IngestResult, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.IngestResult), args.Error(1)
}

func (m *mockIngester) RemoveNotebook(ctx context.Context, notebookID string) bool {
	return m.Called(ctx, notebookID).Bool(0)
}

type mockStudier struct {
	mock.Mock
}

func (m *mockStudier) Ask(ctx context.Context, notebookID, question string) (string, bool) {
	args := m.Called(ctx, notebookID, question)
	return args.String(0), args.Bool(1)
}

func (m *mockStudier) Generate(ctx context.Context, notebookID, feature string) (string, bool, error) {
	args := m.Called(ctx, notebookID, feature)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockStudier) Clear(ctx context.Context, notebookID, feature string) (bool, error) {
	args := m.Called(ctx, notebookID, feature)
	return args.Bool(0), args.Error(1)
}

func newTestServer(t *testing.T, checks map[string]ReadinessCheck) (*Server, *mockIngester, *mockStudier) {
	t.Helper()
	ingest := new(mockIngester)
	study := new(mockStudier)
	s, err := NewServer("cramwell-test", &Ports{Ingestion: ingest, Study: study, Checks: checks}, zap.NewNop())
	require.NoError(t, err)
	return s, ingest, study
}

func TestNewServer_RequiresServices(t *testing.T) {
	_, err := NewServer("", &Ports{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingService)
}

func TestProcessFile(t *testing.T) {
	ctx := context.Background()

	t.Run("object key goes through staging", func(t *testing.T) {
		s, ingest, _ := newTestServer(t, nil)
		ingest.On("IngestObject", mock.Anything, kafka.IngestJob{NotebookID: "nb", ObjectKey: "nb/syllabus.pdf", Filename: "syllabus.pdf"}).
			Return(&services.IngestResult{NotebookID: "nb", Filename: "syllabus.pdf", Strategy: "pdf_text", Chunks: 4}, nil)

		_, out, err := s.handleProcessFile(ctx, nil, ProcessFileInput{NotebookID: "nb", Filename: "syllabus.pdf", ObjectKey: "nb/syllabus.pdf"})
		require.NoError(t, err)
		assert.True(t, out.Processed)
		assert.Equal(t, 4, out.Chunks)
		assert.Equal(t, "pdf_text", out.Strategy)
		assert.Equal(t, "Processed syllabus.pdf into 4 chunks for notebook nb", out.Message)
	})

	t.Run("local path", func(t *testing.T) {
		s, ingest, _ := newTestServer(t, nil)
		ingest.On("Ingest", mock.Anything, services.SourceDocument{NotebookID: "nb", Filename: "/tmp/notes.md", Path: "/tmp/notes.md"}).
			Return(&services.IngestResult{NotebookID: "nb", Filename: "/tmp/notes.md", Chunks: 1}, nil)

		_, out, err := s.handleProcessFile(ctx, nil, ProcessFileInput{NotebookID: "nb", Filename: "/tmp/notes.md"})
		require.NoError(t, err)
		assert.True(t, out.Processed)
		ingest.AssertExpectations(t)
	})

	t.Run("rejections become messages", func(t *testing.T) {
		s, ingest, _ := newTestServer(t, nil)
		ingest.On("Ingest", mock.Anything, mock.Anything).Return(nil, apperrors.ErrUnsupportedType).Once()
		ingest.On("Ingest", mock.Anything, mock.Anything).Return(nil, apperrors.ErrUnprocessable).Once()

		_, out, err := s.handleProcessFile(ctx, nil, ProcessFileInput{NotebookID: "nb", Filename: "deck.ppt"})
		require.NoError(t, err)
		assert.False(t, out.Processed)
		assert.Equal(t, msgNotProcessed+" The file type is not supported.", out.Message)

		_, out, err = s.handleProcessFile(ctx, nil, ProcessFileInput{NotebookID: "nb", Filename: "scan.pdf"})
		require.NoError(t, err)
		assert.Equal(t, msgNotProcessed, out.Message)
	})
}

func TestQuery(t *testing.T) {
	s, _, study := newTestServer(t, nil)
	study.On("Ask", mock.Anything, "nb", "What is entropy?").Return("**Answer:** disorder", true)
	study.On("Ask", mock.Anything, "empty", mock.Anything).Return("", false)

	_, out, err := s.handleQuery(context.Background(), nil, QueryInput{NotebookID: "nb", Question: "What is entropy?"})
	require.NoError(t, err)
	assert.True(t, out.Answered)
	assert.Equal(t, "**Answer:** disorder", out.Answer)

	_, out, err = s.handleQuery(context.Background(), nil, QueryInput{NotebookID: "empty", Question: "anything"})
	require.NoError(t, err)
	assert.False(t, out.Answered)
	assert.Equal(t, msgNoAnswer, out.Answer)
}

func TestDeleteNotebook(t *testing.T) {
	s, ingest, _ := newTestServer(t, nil)
	ingest.On("RemoveNotebook", mock.Anything, "nb").Return(true)
	ingest.On("RemoveNotebook", mock.Anything, "broken").Return(false)

	_, out, err := s.handleDeleteNotebook(context.Background(), nil, NotebookInput{NotebookID: "nb"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "Successfully deleted all documents for notebook nb", out.Message)

	_, out, err = s.handleDeleteNotebook(context.Background(), nil, NotebookInput{NotebookID: "broken"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "Failed to delete documents for notebook broken", out.Message)
}

func TestGenerateAndClearFeature(t *testing.T) {
	s, _, study := newTestServer(t, nil)
	study.On("Generate", mock.Anything, "nb", "Exam").Return("# Sample Exam Questions", true, nil)
	study.On("Generate", mock.Anything, "nb", "quiz").Return("", false, apperrors.ErrInvalidInput)
	study.On("Clear", mock.Anything, "nb", "").Return(true, nil)

	_, out, err := s.handleGenerateFeature(context.Background(), nil, FeatureInput{NotebookID: "nb", Feature: "Exam"})
	require.NoError(t, err)
	assert.Equal(t, FeatureOutput{Feature: "exam", Content: "# Sample Exam Questions", Cached: true}, out)

	_, _, err = s.handleGenerateFeature(context.Background(), nil, FeatureInput{NotebookID: "nb", Feature: "quiz"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, msg, err := s.handleClearFeature(context.Background(), nil, FeatureInput{NotebookID: "nb"})
	require.NoError(t, err)
	assert.True(t, msg.Success)
	assert.Equal(t, "Cleared all study features for notebook nb", msg.Message)
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	_, out, err := s.handleHealth(context.Background(), nil, HealthInput{})
	require.NoError(t, err)
	assert.True(t, out.Healthy)
	assert.Equal(t, msgHealthy, out.Status)

	s, _, _ = newTestServer(t, map[string]ReadinessCheck{
		"vector_index": func(context.Context) bool { return true },
		"embedder":     func(context.Context) bool { return false },
	})
	_, out, err = s.handleHealth(context.Background(), nil, HealthInput{})
	require.NoError(t, err)
	assert.False(t, out.Healthy)
	assert.Equal(t, msgDegraded, out.Status)
	assert.Equal(t, map[string]bool{"vector_index": true, "embedder": false}, out.Components)
}
