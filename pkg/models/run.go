package models

// Run variables the engine stores in a run's metadata.
const (
	VarCommentID        = "commentId"
	VarCommentText      = "comment_text"
	VarMediaID          = "mediaId"
	VarMessageText      = "message_text"
	VarUsername         = "username"
	VarEmail            = "email"
	VarPrivateReplySent = "privateReplySent"
	VarTriggerType      = "triggerType"
)

// RunContext carries the state of a single walk through a flow for one contact.
type RunContext struct {
	Flow       *Flow
	Channel    *Channel
	Contact    *Contact
	ExternalID string
	Variables  map[string]any
	Log        *DeliveryLog
}

// Var returns a run variable as a string.
func (r *RunContext) Var(key string) string {
	return dataString(r.Variables, key)
}

// SetVar stores a run variable.
func (r *RunContext) SetVar(key string, value any) {
	if r.Variables == nil {
		r.Variables = make(map[string]any)
	}

	r.Variables[key] = value
}

// TriggerType returns the flow trigger type that started the run.
func (r *RunContext) TriggerType() FlowTriggerType {
	if t := r.Var(VarTriggerType); t != "" {
		return FlowTriggerType(t)
	}

	if r.Flow != nil {
		return r.Flow.TriggerType
	}

	return ""
}

// Flag returns a run variable as a boolean.
func (r *RunContext) Flag(key string) bool {
	return dataBool(r.Variables, key)
}
