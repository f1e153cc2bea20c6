//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
)

func TestKafkaPublisher_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v23.3.3")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	const topic = "registration-events"
	pub, err := NewKafkaPublisher(ctx, []string{broker}, topic, nil)
	require.NoError(t, err)
	defer pub.Close()

	sessionID := id.NewSessionID()
	event := NewEvent(EventCompleted, sessionID, models.StepContractSigned, time.Now())
	require.NoError(t, pub.Publish(ctx, event))

	// Creating the topic a second time is not an error.
	_, err = NewKafkaPublisher(ctx, []string{broker}, topic, nil)
	require.NoError(t, err)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.NotEmpty(t, records)

	var got Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, event.ID, got.ID)
	require.Equal(t, sessionID.String(), string(records[0].Key))
}
