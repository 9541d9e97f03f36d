package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GetStringParam safely gets a string parameter from arguments
// It also handles numeric IDs and converts them to strings
func GetStringParam(arguments map[string]interface{}, key string, required bool) (string, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing required argument: %s", key)
		}
		return "", nil
	}

	switch v := val.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("invalid type for argument %s: expected string or number, got %T", key, val)
	}
}

// GetObjectParam safely gets a map/object parameter from arguments
func GetObjectParam(arguments map[string]interface{}, key string, required bool) (map[string]interface{}, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return nil, fmt.Errorf("missing required argument: %s", key)
		}
		return nil, nil
	}

	obj, ok := val.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid type for argument %s: expected object", key)
	}

	return obj, nil
}

// GetIntParam safely gets an integer parameter from arguments
func GetIntParam(arguments map[string]interface{}, key string, required bool) (int, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing required argument: %s", key)
		}
		return 0, nil
	}

	switch v := val.(type) {
	case float64:
		// float64(math.MaxInt) rounds up to 2^63, so the upper bound is exclusive.
		if v != math.Trunc(v) || v < float64(math.MinInt) || v >= float64(math.MaxInt) {
			return 0, fmt.Errorf("invalid value for argument %s: %v is not an integer in range", key, v)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid value for argument %s: %q is not an integer", key, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("invalid type for argument %s: expected number or string, got %T", key, val)
	}
}

// GetBoolParam safely gets a boolean parameter from arguments
func GetBoolParam(arguments map[string]interface{}, key string, required bool) (bool, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return false, fmt.Errorf("missing required argument: %s", key)
		}
		return false, nil
	}

	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("invalid type for argument %s: expected boolean or string, got %T", key, val)
	}
}

// GetArrayParam safely gets an array parameter from arguments
func GetArrayParam(arguments map[string]interface{}, key string, required bool) ([]interface{}, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return nil, fmt.Errorf("missing required argument: %s", key)
		}
		return nil, nil
	}

	arr, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid type for argument %s: expected array", key)
	}

	return arr, nil
}

// GetStringArrayParam safely gets a string array parameter from arguments
func GetStringArrayParam(arguments map[string]interface{}, key string, required bool) ([]string, error) {
	arr, err := GetArrayParam(arguments, key, required)
	if err != nil {
		return nil, err
	}
	if arr == nil {
		return nil, nil
	}

	result := make([]string, 0, len(arr))
	for i, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("invalid type for element %d of argument %s: expected string", i, key)
		}
		result = append(result, s)
	}

	return result, nil
}

// GetIntArrayParam gets a list of integer ids. A comma-separated string such
// as "12, 15,18" is accepted as well as a JSON array.
func GetIntArrayParam(arguments map[string]interface{}, key string, required bool) ([]int, error) {
	val, ok := arguments[key]
	if !ok {
		if required {
			return nil, fmt.Errorf("missing required argument: %s", key)
		}
		return nil, nil
	}

	var raw []interface{}
	switch v := val.(type) {
	case []interface{}:
		raw = v
	case []int:
		return v, nil
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				raw = append(raw, part)
			}
		}
	default:
		return nil, fmt.Errorf("invalid type for argument %s: expected array of integers, got %T", key, val)
	}

	result := make([]int, 0, len(raw))
	for i, elem := range raw {
		n, err := GetIntParam(map[string]interface{}{"v": elem}, "v", true)
		if err != nil {
			return nil, fmt.Errorf("invalid element %d of argument %s: expected integer", i, key)
		}
		result = append(result, n)
	}
	return result, nil
}
