package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danielortiz-dev/vendique-backend/api/responses"
	"github.com/danielortiz-dev/vendique-backend/pkg/db/models"
	"github.com/danielortiz-dev/vendique-backend/pkg/enums"
	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/pagination"
)

// DLQReader is the slice of the outbox DLQ repository the debug routes need.
type DLQReader interface {
	List(ctx context.Context, limit int, reason enums.OutboxDLQErrorReason) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

type dlqEntry struct {
	ID            uuid.UUID       `json:"id"`
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	Payload       json.RawMessage `json:"payload"`
	ErrorReason   string          `json:"errorReason"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	AttemptCount  int             `json:"attemptCount"`
	FailedAt      time.Time       `json:"failedAt"`
}

func toDLQEntry(row models.OutboxDLQ) dlqEntry {
	entry := dlqEntry{
		ID:            row.ID,
		EventID:       row.EventID,
		EventType:     string(row.EventType),
		AggregateType: string(row.AggregateType),
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   string(row.ErrorReason),
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
	}
	if row.ErrorMessage != nil {
		entry.ErrorMessage = *row.ErrorMessage
	}
	return entry
}

// OutboxDLQList lists recent terminal publish failures, newest first.
// ?reason= narrows to one error reason, ?limit= caps the page size.
func OutboxDLQList(logg *logger.Logger, reader DLQReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requested, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		limit := pagination.Params{Limit: requested}.PageSize()

		var reason enums.OutboxDLQErrorReason
		if raw := r.URL.Query().Get("reason"); raw != "" {
			parsed, err := enums.ParseOutboxDLQErrorReason(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, err.Error()))
				return
			}
			reason = parsed
		}

		rows, err := reader.List(r.Context(), limit, reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list outbox dlq"))
			return
		}
		entries := make([]dlqEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, toDLQEntry(row))
		}
		responses.WriteSuccess(w, map[string]any{
			"entries": entries,
			"limit":   limit,
		})
	}
}

// OutboxDLQGet fetches the dead-letter copy of a single event.
func OutboxDLQGet(logg *logger.Logger, reader DLQReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id must be a uuid"))
			return
		}

		row, err := reader.FindByEventID(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load outbox dlq entry"))
			return
		}
		if row == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no dlq entry for event"))
			return
		}
		responses.WriteSuccess(w, toDLQEntry(*row))
	}
}
