package payment

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
)

// UnwrapPayload normalizes a callback body into a JSON object. Gateways
// variously send a JSON object, a JSON string holding an encoded object, or a
// form body with the object in a single field. ok is false when nothing
// object-shaped can be recovered.
func UnwrapPayload(body []byte, formFields ...string) (payload []byte, ok bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false
	}

	switch trimmed[0] {
	case '{':
		if json.Valid(trimmed) {
			return trimmed, true
		}
		return nil, false
	case '"':
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, false
		}
		return UnwrapPayload([]byte(inner), formFields...)
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, false
	}
	for _, field := range formFields {
		if v := values.Get(field); v != "" {
			return UnwrapPayload([]byte(v))
		}
	}
	if len(values) == 0 {
		return nil, false
	}
	flat := make(map[string]string, len(values))
	for k := range values {
		flat[k] = values.Get(k)
	}
	encoded, err := json.Marshal(flat)
	if err != nil {
		return nil, false
	}
	return encoded, true
}

// FirstParam returns the first non-empty value among keys.
func FirstParam(params url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(params.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// ParamsJSON renders redirect params as a flat JSON object for RawData.
func ParamsJSON(params url.Values) json.RawMessage {
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	b, _ := json.Marshal(flat)
	return b
}

// FlexString accepts a JSON string or number; gateways are inconsistent
// about how they encode status codes and ids.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(v)
		return nil
	}
	*f = FlexString(s)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}
