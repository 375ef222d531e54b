package eventing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"memoryengine/internal/config"
)

// MaintenanceEvent reports the outcome of one cron_weekly pass for
// downstream observability pipelines (decay sweep counts, theme
// splits/merges applied).
type MaintenanceEvent struct {
	SemanticsDeleted   int      `json:"semantics_deleted"`
	EpisodesDeleted    int      `json:"episodes_deleted"`
	RawMessagesBlanked int      `json:"raw_messages_blanked"`
	ThemesSplit        []string `json:"themes_split,omitempty"`
	ThemesMerged       []string `json:"themes_merged,omitempty"`
	Alpha              float64  `json:"alpha"`
	Timestamp          time.Time `json:"timestamp"`
}

// MaintenancePublisher publishes MaintenanceEvents.
type MaintenancePublisher struct {
	writer *kafka.Writer
}

// NewMaintenancePublisher builds a publisher when enabled; returns nil when
// disabled so callers can treat a nil *MaintenancePublisher as a no-op sink.
func NewMaintenancePublisher(cfg config.KafkaConfig) (*MaintenancePublisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &MaintenancePublisher{writer: writer}, nil
}

func (p *MaintenancePublisher) Publish(ctx context.Context, ev MaintenanceEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Value: payload, Time: ev.Timestamp})
}

func (p *MaintenancePublisher) Close() {
	if p == nil || p.writer == nil {
		return
	}
	if err := p.writer.Close(); err != nil {
		log.Warn().Err(err).Msg("maintenance_publisher_close_failed")
	}
}
