package gateway

import (
	"github.com/quill-agent/quill/errors"
)

// Parameter extraction helpers. Action parameters arrive as loosely typed
// maps decoded from model JSON, so numbers may be float64 and lists may be
// []interface{}. Every mismatch is an InvalidArgument.

func stringParam(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", errors.E(errors.InvalidArgument, "missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errors.E(errors.InvalidArgument, "parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalStringParam(params map[string]interface{}, key, fallback string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.E(errors.InvalidArgument, "parameter %q must be a string", key)
	}
	if s == "" {
		return fallback, nil
	}
	return s, nil
}

func intParam(params map[string]interface{}, key string, fallback int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, errors.E(errors.InvalidArgument, "parameter %q must be an integer", key)
		}
		return int(n), nil
	default:
		return 0, errors.E(errors.InvalidArgument, "parameter %q must be an integer", key)
	}
}

func boolParam(params map[string]interface{}, key string) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.E(errors.InvalidArgument, "parameter %q must be a boolean", key)
	}
	return b, nil
}

func stringSliceParam(params map[string]interface{}, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, errors.E(errors.InvalidArgument, "parameter %q must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.E(errors.InvalidArgument, "parameter %q must be a list of strings", key)
	}
}
