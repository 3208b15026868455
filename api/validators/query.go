package validators

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ClampQueryInt reads an int query parameter without ever rejecting it.
// Missing or non-numeric values yield defaultVal; anything else, including
// values too large for an int, is clamped into [min, max].
func ClampQueryInt(r *http.Request, key string, defaultVal, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return clampInt(defaultVal, min, max)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		if !errors.Is(err, strconv.ErrRange) {
			return clampInt(defaultVal, min, max)
		}
		if strings.HasPrefix(raw, "-") {
			return min
		}
		return max
	}
	return clampInt(value, min, max)
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
