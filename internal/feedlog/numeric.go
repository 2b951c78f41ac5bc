package feedlog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FieldValue is the field name used for plain numeric payloads.
const FieldValue = "value"

// NumericFields extracts the numeric content of a payload.
//
// A plain number ("21.5") yields {"value": 21.5}. A JSON object yields its
// top-level numeric members, e.g. an air-quality forecast
// {"aqi": 42, "category": "Good", "pm2_5": 9.1} yields {"aqi": 42, "pm2_5": 9.1}.
// Anything else yields nil.
func NumericFields(payload string) map[string]float64 {
	s := strings.TrimSpace(payload)
	if s == "" {
		return nil
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if !finite(v) {
			return nil
		}
		return map[string]float64{FieldValue: v}
	}

	if s[0] != '{' {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}

	fields := make(map[string]float64, len(obj))
	for k, raw := range obj {
		if v, ok := raw.(float64); ok && finite(v) {
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
