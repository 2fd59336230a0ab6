package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Provider payloads are opaque documents with no schema guarantee; every read
// in this file fails soft. An absent or malformed field yields the zero value,
// never an error.

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

// eventObject returns the payload's primary object: data.object when present,
// else data, else the payload itself.
func eventObject(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	if data := asMap(payload["data"]); data != nil {
		if object := asMap(data["object"]); object != nil {
			return object
		}
		return data
	}
	return payload
}

// eventMetadata locates the checkout metadata block, checking the object,
// the data envelope, and the payload root in that order.
func eventMetadata(payload map[string]any) map[string]any {
	if meta := asMap(eventObject(payload)["metadata"]); meta != nil {
		return meta
	}
	if data := asMap(payload["data"]); data != nil {
		if meta := asMap(data["metadata"]); meta != nil {
			return meta
		}
	}
	if meta := asMap(payload["metadata"]); meta != nil {
		return meta
	}
	return map[string]any{}
}

func stringField(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, key := range keys {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		if value := strings.TrimSpace(fmt.Sprint(raw)); value != "" && value != "<nil>" {
			return value
		}
	}
	return ""
}

func numberField(m map[string]any, key string) *float64 {
	if m == nil {
		return nil
	}
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil
	}
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		value = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		value = parsed
	default:
		return nil
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}

func timeField(m map[string]any, keys ...string) *time.Time {
	if m == nil {
		return nil
	}
	for _, key := range keys {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case time.Time:
			value := v.UTC()
			return &value
		case string:
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
				value := parsed.UTC()
				return &value
			}
		}
	}
	return nil
}

func boolField(m map[string]any, keys ...string) bool {
	if m == nil {
		return false
	}
	for _, key := range keys {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case bool:
			return v
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return parsed
			}
		}
	}
	return false
}

// checkoutID prefers a nested checkout object id, then a top-level
// checkout_id, then the object's own id. Some event types legitimately carry
// none, in which case the order path is a no-op.
func checkoutID(payload map[string]any) string {
	object := eventObject(payload)
	if checkout := asMap(object["checkout"]); checkout != nil {
		if id := stringField(checkout, "id"); id != "" {
			return id
		}
	}
	if id := stringField(object, "checkout_id"); id != "" {
		return id
	}
	return stringField(object, "id")
}

func subscriptionID(payload map[string]any) string {
	object := eventObject(payload)
	if subscription := asMap(object["subscription"]); subscription != nil {
		if id := stringField(subscription, "id"); id != "" {
			return id
		}
	}
	if id := stringField(object, "subscription_id"); id != "" {
		return id
	}
	return stringField(object, "id")
}

// orderSection returns the nested order sub-object carrying amount/currency/
// paid_at, falling back to the object itself.
func orderSection(payload map[string]any) map[string]any {
	object := eventObject(payload)
	if order := asMap(object["order"]); order != nil {
		return order
	}
	return object
}

// payloadUserID accepts the historical metadata key spellings.
func payloadUserID(payload map[string]any) string {
	return stringField(eventMetadata(payload), "userId", "user_id", "userid")
}

func payloadNovelID(payload map[string]any) string {
	return stringField(eventMetadata(payload), "novelId", "novel_id")
}
