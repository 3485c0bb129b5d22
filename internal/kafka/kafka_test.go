package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIngestJob(t *testing.T) {
	job, err := ParseIngestJob([]byte(`{"notebook_id":"nb","object_key":"nb/syllabus.pdf","filename":"syllabus.pdf"}`))
	require.NoError(t, err)
	assert.Equal(t, "nb", job.NotebookID)
	assert.Equal(t, "syllabus.pdf", job.Filename)

	_, err = ParseIngestJob([]byte(`{"object_key":"x"}`))
	assert.Error(t, err)

	_, err = ParseIngestJob([]byte(`not json`))
	assert.Error(t, err)
}

func TestProducer_SubmitJob(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var job IngestJob
		if err := json.Unmarshal(val, &job); err != nil {
			return err
		}
		if job.NotebookID != "nb" || job.RequestedAt.IsZero() {
			return errors.New("unexpected job payload")
		}
		return nil
	})

	p := newProducer(sp, "jobs", "events", nil)
	require.NoError(t, p.SubmitJob(context.Background(), IngestJob{NotebookID: "nb", ObjectKey: "nb/a.pdf"}))
	assert.Error(t, p.SubmitJob(context.Background(), IngestJob{ObjectKey: "x"}))
	require.NoError(t, p.Close())
}

func TestProducer_PublishIngestedFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newProducer(sp, "jobs", "events", nil)
	err := p.PublishIngested(context.Background(), IngestedEvent{NotebookID: "nb", Outcome: "ok"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestJobGroupHandler_Process(t *testing.T) {
	var seen []string
	h := &jobGroupHandler{
		handle: func(ctx context.Context, job IngestJob) error {
			seen = append(seen, job.ObjectKey)
			if job.ObjectKey == "fail" {
				return errors.New("backend down")
			}
			return nil
		},
	}
	h.log = newProducer(nil, "", "", nil).log

	ok := h.process(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"notebook_id":"nb","object_key":"a"}`)})
	assert.True(t, ok)

	ok = h.process(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"notebook_id":"nb","object_key":"fail"}`)})
	assert.False(t, ok)

	ok = h.process(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{}`)})
	assert.True(t, ok)

	assert.Equal(t, []string{"a", "fail"}, seen)
}
