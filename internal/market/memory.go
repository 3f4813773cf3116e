package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryProvider 在内存中保存序列，主要用于测试与数据导入。
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]map[Period]Series
}

// NewMemoryProvider 创建空的内存数据源。
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]map[Period]Series)}
}

// Put 写入（覆盖）一个序列。
func (m *MemoryProvider) Put(series Series) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPeriod, ok := m.data[series.Symbol]
	if !ok {
		byPeriod = make(map[Period]Series)
		m.data[series.Symbol] = byPeriod
	}
	series.Sanitize()
	byPeriod[series.Period] = series
}

// Series 实现 Provider。
func (m *MemoryProvider) Series(ctx context.Context, symbol string, period Period, start, end time.Time) (Series, error) {
	if err := ctx.Err(); err != nil {
		return Series{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	series, ok := m.data[symbol][period]
	if !ok {
		return Series{}, fmt.Errorf("%w: %s %s", ErrNoData, symbol, period)
	}
	return series.Between(start, end), nil
}
