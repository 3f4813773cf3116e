package market

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	msThreshold = 1e11 // 大于此值视为毫秒
	usThreshold = 1e14 // 大于此值视为微秒
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"20060102150405",
	"20060102 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102",
	"2006/01/02",
}

// NormalizeTimestamp 将秒/毫秒/微秒整数、浮点、字符串或 time.Time 统一转换为
// 交易所时区下的 time.Time。所有时间戳精度推断都应经过这里。
func NormalizeTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.In(Location), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return NormalizeTimestamp(*v)
	case int64:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case int32:
		return fromEpoch(float64(v))
	case uint64:
		return fromEpoch(float64(v))
	case float64:
		return fromEpoch(v)
	case float32:
		return fromEpoch(float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return fromEpoch(f)
		}
		return parseTimeString(v.String())
	case string:
		return parseTimeString(v)
	case []byte:
		return parseTimeString(string(v))
	}
	return time.Time{}, false
}

// EpochKey 返回用于索引的毫秒时间戳。
func EpochKey(t time.Time) int64 {
	return t.UnixMilli()
}

func fromEpoch(v float64) (time.Time, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return time.Time{}, false
	}
	switch {
	case v >= usThreshold:
		return time.UnixMicro(int64(v)).In(Location), true
	case v >= msThreshold:
		return time.UnixMilli(int64(v)).In(Location), true
	default:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).In(Location), true
	}
}

func parseTimeString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	// 纯数字且长度不是日期格式时按 epoch 处理
	if len(s) != 8 && len(s) != 14 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, Location); err == nil {
			return t.In(Location), true
		}
	}
	return time.Time{}, false
}
