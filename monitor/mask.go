package monitor

import (
	"encoding/json"
	"sort"
	"strings"
)

// Mask replaces sensitive values.
const Mask = "***"

// User identifies the current user of a report. Its values are masked out of captured data.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	UserName  string `json:"userName"`
}

func (u User) sensitive() []string {
	var values []string
	for _, v := range []string{u.ID, u.FirstName, u.LastName, u.Email, u.UserName} {
		if strings.TrimSpace(v) != "" {
			values = append(values, v)
		}
	}
	// longest first so an email is masked before the user name it contains
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	return values
}

// MaskSensitiveData walks maps, slices and strings and replaces every
// occurrence of the user's identifying values with Mask. Other values are
// returned unchanged. The input is not modified.
func MaskSensitiveData(data interface{}, user User) interface{} {
	values := user.sensitive()
	if len(values) == 0 {
		return data
	}
	return maskValue(data, values)
}

// MaskJSON masks a raw JSON document. Invalid JSON is masked as a plain string.
func MaskJSON(raw json.RawMessage, user User) json.RawMessage {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return json.RawMessage(MaskString(string(raw), user))
	}
	out, err := json.Marshal(MaskSensitiveData(decoded, user))
	if err != nil {
		return raw
	}
	return out
}

// MaskString masks the user's identifying values inside s.
func MaskString(s string, user User) string {
	return maskString(s, user.sensitive())
}

func maskValue(v interface{}, values []string) interface{} {
	switch t := v.(type) {
	case string:
		return maskString(t, values)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, inner := range t {
			out[k] = maskValue(inner, values)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, inner := range t {
			out[k] = maskString(inner, values)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, inner := range t {
			out[i] = maskValue(inner, values)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, inner := range t {
			out[i] = maskString(inner, values)
		}
		return out
	default:
		return v
	}
}

func maskString(s string, values []string) string {
	for _, v := range values {
		s = strings.ReplaceAll(s, v, Mask)
	}
	return s
}
