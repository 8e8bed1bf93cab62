// Package events handles event emission for merge and link outcomes.
// Emission is best-effort: a broker outage never fails the run.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Publisher is the kafka surface the emitter needs.
type Publisher interface {
	PublishMergeEvent(ctx context.Context, event *kafka.MergeEvent) error
	PublishLinkEvent(ctx context.Context, event *kafka.LinkEvent) error
}

// Emitter publishes dedupe lifecycle events. A nil producer disables
// emission entirely.
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitEntityMerged emits an entity.merged event after a committed merge.
func (e *Emitter) EmitEntityMerged(ctx context.Context, record *models.MergeRecord) {
	if e == nil || e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityMerged")
	defer span.End()

	event := &kafka.MergeEvent{
		EventType:     "entity.merged",
		WorkspaceID:   record.WorkspaceID,
		SourceID:      record.SourceID,
		DestinationID: record.DestinationID,
		Score:         record.Score,
		Strategy:      record.Strategy,
	}

	if err := e.producer.PublishMergeEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.merged event")
	}
}

// EmitActivityLinked emits an activity.linked event after a committed link.
func (e *Emitter) EmitActivityLinked(ctx context.Context, workspaceID string, resolution *models.OrphanResolution) {
	if e == nil || e.producer == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitActivityLinked")
	defer span.End()

	event := &kafka.LinkEvent{
		EventType:      "activity.linked",
		WorkspaceID:    workspaceID,
		ActivityID:     resolution.ActivityID,
		PersonID:       resolution.PersonID,
		OrganizationID: resolution.OrganizationID,
		Strategy:       resolution.Strategy,
		LowConfidence:  resolution.LowConfidence,
	}

	if err := e.producer.PublishLinkEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit activity.linked event")
	}
}
