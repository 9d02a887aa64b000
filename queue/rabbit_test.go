package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRabbitMQNotifierReturnsQueueDeclareError(t *testing.T) {
	dialer, channel := SetupMockDialerWithQueueError()
	_, err := NewRabbitMQNotifierWithDialer(NotifierConfig{RabbitMQURL: "amqp://localhost", QueueName: "qsbot.batches"}, dialer)
	require.Error(t, err)
	assert.True(t, channel.QueueDeclareCalled)
}

func TestPublishBatchEventSerializesAndPublishes(t *testing.T) {
	dialer, channel, _ := SetupMockDialerForTest()
	notifier, err := NewRabbitMQNotifierWithDialer(NotifierConfig{RabbitMQURL: "amqp://localhost", QueueName: "qsbot.batches"}, dialer)
	require.NoError(t, err)

	err = notifier.PublishBatchEvent(BatchEvent{
		BatchID:   42,
		OwnerUser: "Tester",
		Site:      "wikidata",
		Status:    BatchDone,
		At:        time.Unix(0, 0),
	})
	require.NoError(t, err)

	require.Len(t, channel.PublishedMessages, 1)
	assert.Equal(t, "qsbot.batches", channel.PublishedKeys[0])
	assert.Contains(t, string(channel.PublishedMessages[0].Body), `"batch_id":42`)
}

func TestNewRabbitMQNotifierDialError(t *testing.T) {
	dialer := NewMockAMQPDialerWithError(assert.AnError)
	_, err := NewRabbitMQNotifierWithDialer(NotifierConfig{RabbitMQURL: "amqp://localhost", QueueName: "qsbot.batches"}, dialer)
	require.Error(t, err)
}

func TestNoopNotifierDiscardsEvents(t *testing.T) {
	n := NoopNotifier{}
	require.NoError(t, n.PublishBatchEvent(BatchEvent{BatchID: 1}))
	require.NoError(t, n.Close())
}
