package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPublish(t *testing.T) {
	before := testutil.ToFloat64(PublishTotal.WithLabelValues("metrics-test", "published"))

	RecordPublish("metrics-test", "published", 0.25)
	RecordPublish("metrics-test", "published", 0.5)

	assert.Equal(t, before+2, testutil.ToFloat64(PublishTotal.WithLabelValues("metrics-test", "published")))
}

func TestRecordRetry(t *testing.T) {
	before := testutil.ToFloat64(RetriesTotal.WithLabelValues("metrics-test"))
	RecordRetry("metrics-test")
	assert.Equal(t, before+1, testutil.ToFloat64(RetriesTotal.WithLabelValues("metrics-test")))
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth(map[string]int{"queued": 3, "failed": 1})

	assert.Equal(t, 3.0, testutil.ToFloat64(QueueItems.WithLabelValues("queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(QueueItems.WithLabelValues("failed")))

	SetQueueDepth(map[string]int{"queued": 0})
	assert.Equal(t, 0.0, testutil.ToFloat64(QueueItems.WithLabelValues("queued")))
}
