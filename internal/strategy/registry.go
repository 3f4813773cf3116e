package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownStrategy 策略名未注册，属于致命配置错误。
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// Factory 根据参数构建策略实例。每次回测获得独立实例。
type Factory func(params Params) (Strategy, error)

// Registry 为按名称索引的策略工厂表。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry 创建空的注册表。
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry 返回注册了全部内置策略的注册表。
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BuyAndHoldName, NewBuyAndHold)
	r.Register(SMACrossName, NewSMACross)
	r.Register(RSIReversionName, NewRSIReversion)
	r.Register(MACDTrendName, NewMACDTrend)
	return r
}

// Register 注册工厂，同名覆盖。
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New 构建策略实例。
func (r *Registry) New(name string, params Params) (Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownStrategy, name, r.Names())
	}
	s, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("strategy: 构建策略 %s 失败: %w", name, err)
	}
	return s, nil
}

// Names 返回已注册的策略名（有序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
