package strategy

import (
	"strings"

	"github.com/spf13/cast"
)

// Params 为策略参数，来源于配置 backtest.strategy_params。
type Params map[string]any

// Float 读取浮点参数，缺失或无法转换时返回默认值。
func (p Params) Float(key string, def float64) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// Int 读取整数参数。
func (p Params) Int(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// String 读取字符串参数。
func (p Params) String(key, def string) string {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil || s == "" {
		return def
	}
	return s
}

// Bool 读取布尔参数。
func (p Params) Bool(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// viper 会将键统一转为小写。
func (p Params) lookup(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	if v, ok := p[key]; ok {
		return v, true
	}
	v, ok := p[strings.ToLower(key)]
	return v, ok
}
