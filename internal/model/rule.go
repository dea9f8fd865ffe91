package model

import "time"

// TriggerType says which side of the event window an automation rule keys on.
type TriggerType string

const (
	TriggerBeforeEventStart TriggerType = "before_event_start"
	TriggerAfterEventEnd    TriggerType = "after_event_end"
)

// AutomationRule couples a time-offset trigger condition with an action
// payload. Rules are created and edited by the operator; the trigger engine
// only ever reads them.
type AutomationRule struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	Trigger TriggerType `json:"trigger"`

	// Offset is applied in the trigger's direction: start-Offset for
	// before_event_start, end+Offset for after_event_end.
	Offset Duration `json:"offset"`

	// FilterGroupID restricts the rule to events of one group scope.
	// Empty means the rule applies to every event.
	FilterGroupID string `json:"filter_group_id,omitempty"`

	// Action payload. Title/Body may embed {EventName}, {StartTime} and
	// {Description} placeholders. If both render empty, the notification
	// step is skipped but the trigger still evaluates and marks.
	TitleTemplate string `json:"title_template,omitempty"`
	BodyTemplate  string `json:"body_template,omitempty"`

	// PostToGroup publishes the rendered payload as a group post via the
	// platform API. Notify additionally pushes it through the out-of-band
	// notifier (Telegram).
	PostToGroup bool `json:"post_to_group"`
	Notify      bool `json:"notify"`
}

// TriggerInstant computes when the rule becomes eligible for the given
// event window. Comparisons against it must use a single time reference;
// callers normalize to UTC.
func (r *AutomationRule) TriggerInstant(start, end time.Time) time.Time {
	if r.Trigger == TriggerAfterEventEnd {
		return end.Add(r.Offset.Std())
	}
	return start.Add(-r.Offset.Std())
}

func (r *AutomationRule) Normalize() {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Trigger == "" {
		r.Trigger = TriggerBeforeEventStart
	}
	if r.Offset < 0 {
		r.Offset = -r.Offset
	}
}
