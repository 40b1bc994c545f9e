package history

import (
	"time"

	"kiln/internal/ports"
)

// EventModel is the GORM row for one recorded lifecycle event.
type EventModel struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Kind        string    `gorm:"not null;index"`
	SessionName string    `gorm:"index"`
	AgentID     string
	Detail      string
	CreatedAt   time.Time `gorm:"index"`
}

// TableName overrides GORM's pluralization to keep the table name
// stable if the model is ever renamed.
func (EventModel) TableName() string {
	return "events"
}

func toModel(event ports.Event) EventModel {
	return EventModel{
		AgentID:     event.AgentID,
		CreatedAt:   event.CreatedAt,
		Detail:      event.Detail,
		Kind:        event.Kind,
		SessionName: event.SessionName,
	}
}

func fromModel(model EventModel) ports.Event {
	return ports.Event{
		AgentID:     model.AgentID,
		CreatedAt:   model.CreatedAt,
		Detail:      model.Detail,
		Kind:        model.Kind,
		SessionName: model.SessionName,
	}
}
