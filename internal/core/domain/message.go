package domain

import (
	"encoding/json"
)

// MessageType names a page to agent request.
type MessageType string

const (
	MsgClearBadge     MessageType = "CLEAR_BADGE"
	MsgUpdateBadge    MessageType = "UPDATE_BADGE"
	MsgGetUnreadCount MessageType = "GET_UNREAD_COUNT"
	MsgCleanupCaches  MessageType = "CLEANUP_CACHES"
	MsgGetCacheInfo   MessageType = "GET_CACHE_INFO"
	MsgSavePWAState   MessageType = "SAVE_PWA_STATE"
	MsgGetPWAState    MessageType = "GET_PWA_STATE"
)

// Message is a request sent from a page to the background agent.
type Message struct {
	Type  MessageType `json:"type"`
	Count *int        `json:"count,omitempty"`
	State *Snapshot   `json:"state,omitempty"`
}

// Reply is the agent's answer to a Message.
//
// Success is always present. Error is set when Success is false.
// Payload fields are flattened into the top-level JSON object.
type Reply struct {
	Success bool
	Error   string
	Payload map[string]any
}

// OK builds a successful reply with optional payload pairs.
func OK(kv ...any) *Reply {
	r := &Reply{Success: true}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if r.Payload == nil {
			r.Payload = make(map[string]any)
		}
		r.Payload[key] = kv[i+1]
	}
	return r
}

// Fail builds an error reply.
func Fail(err error) *Reply {
	return &Reply{Success: false, Error: err.Error()}
}

// MarshalJSON flattens the payload next to success and error.
func (r *Reply) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+2)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits success and error out of the flat object.
// Payload values keep their raw JSON form.
func (r *Reply) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Reply{}
	if v, ok := raw["success"]; ok {
		if err := json.Unmarshal(v, &r.Success); err != nil {
			return err
		}
		delete(raw, "success")
	}
	if v, ok := raw["error"]; ok {
		if err := json.Unmarshal(v, &r.Error); err != nil {
			return err
		}
		delete(raw, "error")
	}
	if len(raw) > 0 {
		r.Payload = make(map[string]any, len(raw))
		for k, v := range raw {
			r.Payload[k] = v
		}
	}
	return nil
}

// Decode unmarshals one payload field into target.
// Missing fields leave target untouched and return false.
func (r *Reply) Decode(key string, target any) (bool, error) {
	v, ok := r.Payload[key]
	if !ok {
		return false, nil
	}
	var data []byte
	switch raw := v.(type) {
	case json.RawMessage:
		data = raw
	default:
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return false, err
		}
	}
	if string(data) == "null" {
		return false, nil
	}
	return true, json.Unmarshal(data, target)
}
