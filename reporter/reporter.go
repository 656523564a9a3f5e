// Package reporter turns feed activity on the event bus into Datadog
// counters.
package reporter

import (
	"context"
	"encoding/json"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/it35lab/campusfeed/eventbus"
	"github.com/it35lab/campusfeed/model"
	Logger "github.com/it35lab/campusfeed/utils/log"
)

const (
	ActivityCounter = "campusfeed.feed.activity"
)

// StatsClient is the part of *statsd.Client the reporter uses.
type StatsClient interface {
	Incr(name string, tags []string, rate float64) error
}

type ReporterConfig struct {
	Name string
}

// Reporter listens to feed activity and counts it by kind.
type Reporter struct {
	eventbus.Module

	Config ReporterConfig

	Statsd StatsClient

	EventBus message.Subscriber
}

func NewReporter(config ReporterConfig, statsd StatsClient, e message.Subscriber) *Reporter {
	return &Reporter{
		Config:   config,
		Statsd:   statsd,
		EventBus: e,
	}
}

// NewStatsdClient connects to the local Datadog agent, DD_AGENT_HOST
// overrides the address.
func NewStatsdClient() (*statsd.Client, error) {
	addr := os.Getenv("DD_AGENT_HOST")
	if addr != "" {
		addr += ":8125"
	}
	return statsd.New(addr)
}

// ReportActivity increments the activity counter of one event.
func ReportActivity(event model.ActivityEvent, client StatsClient) {
	tags := []string{"kind:" + string(event.Kind)}
	if event.Operation != "" {
		tags = append(tags, "operation:"+event.Operation)
	}
	if err := client.Incr(ActivityCounter, tags, 1); err != nil {
		Logger.Log.Infoln("cannot report activity", err)
	}
}

func (r *Reporter) ProcessActivity(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := r.EventBus.Subscribe(ctx, eventbus.TopicActivity)
	if err != nil {
		return err
	}

	for msg := range messages {
		msg.Ack()

		event := model.ActivityEvent{}
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			Logger.Log.Errorln("drop malformed activity event", err)
			continue
		}

		ReportActivity(event, r.Statsd)
	}

	return nil
}

func (r *Reporter) RunModule(ctx context.Context) error {
	return r.ProcessActivity(ctx)
}

func (r *Reporter) Name() string {
	return r.Config.Name
}
