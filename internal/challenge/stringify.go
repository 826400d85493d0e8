package challenge

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

const nullLiteral = "null"

// Stringify renders obj as sorted key:value pairs joined by commas, without
// enclosing braces. Nested objects are wrapped in braces, arrays have their
// rendered elements sorted. Pairs whose value renders as null are omitted, so
// an explicit nil and an unsupported value type both vanish from the output.
func Stringify(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := renderValue(obj[k])
		if v == nullLiteral {
			continue
		}
		parts = append(parts, k+":"+v)
	}
	return strings.Join(parts, ",")
}

func renderValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return "{" + Stringify(val) + "}"
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = renderValue(item)
		}
		return renderList(items)
	case []string:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = renderValue(item)
		}
		return renderList(items)
	case []map[string]any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = renderValue(item)
		}
		return renderList(items)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return `"` + val + `"`
	case float64:
		return FormatNumber(val)
	case float32:
		return FormatNumber(float64(val))
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		f, err := val.Float64()
		if err != nil {
			return nullLiteral
		}
		return FormatNumber(f)
	default:
		return nullLiteral
	}
}

func renderList(items []string) string {
	sort.Strings(items)
	return "[" + strings.Join(items, ",") + "]"
}

// FormatNumber renders f with eight decimals and strips trailing zeros and a
// dangling decimal point: 2 -> "2", 2.5 -> "2.5", 0.1 -> "0.1".
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
