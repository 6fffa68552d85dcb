package builtin

import "github.com/ravskel/conveyor/internal/connector"

// Извлечение типизированных значений из непрозрачного connector.Config.
// JSON-декодер даёт числа как float64, карты как map[string]any.

func configString(cfg connector.Config, key string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func configInt(cfg connector.Config, key string) int {
	if v, ok := cfg[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

func configFloat(cfg connector.Config, key string) (float64, bool) {
	switch n := cfg[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func configBool(cfg connector.Config, key string, defaultVal bool) bool {
	if v, ok := cfg[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

func configStringMap(cfg connector.Config, key string) map[string]string {
	switch m := cfg[key].(type) {
	case map[string]string:
		return m
	case map[string]any:
		result := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				result[k] = s
			}
		}
		return result
	}
	return nil
}

func configStringSlice(cfg connector.Config, key string) []string {
	switch s := cfg[key].(type) {
	case []string:
		return s
	case []any:
		result := make([]string, 0, len(s))
		for _, v := range s {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return nil
}
