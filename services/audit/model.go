package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// EntityType names the kind of entity an event refers to.
type EntityType string

const (
	EntityTask EntityType = "task"
	EntityTag  EntityType = "tag"
)

func (t EntityType) String() string {
	switch t {
	case EntityTask, EntityTag:
		return string(t)
	default:
		return ""
	}
}

// ActionType is the closed set of auditable mutations.
type ActionType string

const (
	ActionCreate     ActionType = "create"
	ActionUpdate     ActionType = "update"
	ActionComplete   ActionType = "complete"
	ActionUncomplete ActionType = "uncomplete"
	ActionDelete     ActionType = "delete"
	// ActionRecurringAutoCreate is the only action with no human actor: it is
	// written against the successor task spawned by completing a recurring one.
	ActionRecurringAutoCreate ActionType = "recurring_auto_create"
)

func (t ActionType) String() string {
	switch t {
	case ActionCreate, ActionUpdate, ActionComplete, ActionUncomplete, ActionDelete, ActionRecurringAutoCreate:
		return string(t)
	default:
		return ""
	}
}

// Event is one immutable record of a single state change to one entity.
// Rows are only ever inserted; no component exposes an update or delete path.
type Event struct {
	ID           string         `gorm:"column:id;primaryKey" json:"id"`
	EntityType   EntityType     `gorm:"column:entity_type;index:idx_audit_entity" json:"entity_type"`
	EntityID     string         `gorm:"column:entity_id;index:idx_audit_entity" json:"entity_id"`
	ActorID      *string        `gorm:"column:actor_id;index" json:"actor_id"`
	Action       ActionType     `gorm:"column:action" json:"action"`
	FieldChanged *string        `gorm:"column:field_changed" json:"field_changed,omitempty"`
	OldValue     datatypes.JSON `gorm:"column:old_value" json:"old_value,omitempty"`
	NewValue     datatypes.JSON `gorm:"column:new_value" json:"new_value,omitempty"`
	SystemAction bool           `gorm:"column:system_action" json:"system_action"`
	CreatedAt    time.Time      `gorm:"column:created_at;index" json:"created_at"`
}

func (Event) TableName() string {
	return "audit_events"
}

// NewEvent builds a user-actored event for the single-shot actions.
// Updates must go through NewFieldChange so the changed field is always
// recorded, and recurring_auto_create through NewRecurringAutoCreate so it
// can never carry an actor.
func NewEvent(entity EntityType, entityID, actor string, action ActionType) (*Event, error) {
	switch action {
	case ActionCreate, ActionComplete, ActionUncomplete, ActionDelete:
	default:
		return nil, fmt.Errorf("action %q cannot be recorded as a plain event", action)
	}
	if actor == "" {
		return nil, fmt.Errorf("action %q requires an acting principal", action)
	}

	return &Event{
		EntityType: entity,
		EntityID:   entityID,
		ActorID:    &actor,
		Action:     action,
	}, nil
}

// NewFieldChange builds one update event for a single changed field.
// A command that edits three fields produces three of these.
func NewFieldChange(entity EntityType, entityID, actor, field string, oldValue, newValue any) (*Event, error) {
	if actor == "" {
		return nil, fmt.Errorf("update events require an acting principal")
	}
	if field == "" {
		return nil, fmt.Errorf("update events require the changed field name")
	}

	oldJSON, err := serializeValue(oldValue)
	if err != nil {
		return nil, err
	}
	newJSON, err := serializeValue(newValue)
	if err != nil {
		return nil, err
	}

	return &Event{
		EntityType:   entity,
		EntityID:     entityID,
		ActorID:      &actor,
		Action:       ActionUpdate,
		FieldChanged: &field,
		OldValue:     oldJSON,
		NewValue:     newJSON,
	}, nil
}

// NewRecurringAutoCreate builds the system event logged against a successor
// task. It structurally carries no acting principal.
func NewRecurringAutoCreate(entityID string) *Event {
	return &Event{
		EntityType:   EntityTask,
		EntityID:     entityID,
		Action:       ActionRecurringAutoCreate,
		SystemAction: true,
	}
}

func serializeValue(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize audit value: %w", err)
	}
	return datatypes.JSON(b), nil
}
