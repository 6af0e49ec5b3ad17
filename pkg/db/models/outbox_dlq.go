package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
)

// OutboxDLQ is the dead-letter copy of an outbox event the publisher gave up
// on, either after exhausting its attempts or on a non-retryable rejection.
// EventID points back at the original outbox row, FailedAt records when the
// event went terminal, and ErrorMessage keeps the (clipped) last publish
// error. Rows are read through the ops debug routes and pruned by the
// retention job.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:outbox_dlq_error_reason_enum;not null"`
	ErrorMessage  *string                    `gorm:"column:error_message"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0"`
	FailedAt      time.Time                  `gorm:"column:failed_at;autoCreateTime"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the singular table name; the default naming strategy would
// pluralize the struct to outbox_dlqs.
func (OutboxDLQ) TableName() string { return "outbox_dlq" }
