// Package eventbus is the in-process message bus shared by the auth client,
// the feed aggregators and the background modules. For now we use a golang
// channel implementation, it can be replaced by any watermill Pub/Sub when
// the server runs on more than one instance.
package eventbus

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
)

const (
	// Feed activity events, payload is a json encoded model.ActivityEvent.
	TopicActivity = "topic.feed_activity"

	authStateTopicPrefix = "auth_state."
)

// AuthStateTopic is the topic carrying auth state changes of one client.
func AuthStateTopic(clientKey string) string {
	return authStateTopicPrefix + clientKey
}

// New creates a bus. Publish returns once every current subscriber acked the
// message, which keeps per-topic delivery in publish order.
func New() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{BlockPublishUntilSubscriberAck: true},
		watermill.NewStdLogger(false, false),
	)
}

// PublishJSON encodes v and publishes it as a single message.
func PublishJSON(publisher message.Publisher, topic string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode message for "+topic)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	return errors.Wrap(publisher.Publish(topic, msg), "publish to "+topic)
}

// Bus is what producers and consumers need from the bus.
type Bus interface {
	message.Publisher
	message.Subscriber
}
