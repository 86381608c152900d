// Package config loads benchmark settings from flags and an optional JSON or YAML file.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Values reaching these helpers come from viper.AllSettings: JSON numbers decode as
// float64, YAML numbers as int, and nested sections as map[string]interface{}.

// lookupSetting returns the first of keys present in settings. Viper lowercases keys,
// so candidates are tried as given and lowercased.
func lookupSetting(settings map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case map[string]interface{}, []interface{}:
		return "", fmt.Errorf("expected a scalar, got %T", value)
	default:
		return fmt.Sprint(v), nil
	}
}

// asInt accepts whole numbers only; "requests: 10.5" is an error rather than 10.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("expected a boolean, got %T", value)
	}
}

// asDelay reads the "delay" setting. Strings use time.ParseDuration ("50ms"); bare numbers
// are milliseconds, the unit of delay_ms.
func asDelay(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return time.ParseDuration(s)
	default:
		ms, err := asInt(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
}

// asStringSlice accepts a list or a single string, so "thresholds" may hold one rule.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			s, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
}

// toStringKeyMap returns a nested section with lowercased keys.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	section, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a section, got %T", value)
	}
	out := make(map[string]interface{}, len(section))
	for key, val := range section {
		out[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return out, nil
}
