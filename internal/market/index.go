package market

// TimeIndex 将时间戳映射到序列行号，在回测开始前一次性构建。
type TimeIndex struct {
	rows map[int64]int
}

// NewTimeIndex 以原始 epoch 键构建索引。
func NewTimeIndex(keys []int64) *TimeIndex {
	idx := &TimeIndex{rows: make(map[int64]int, len(keys))}
	for i, k := range keys {
		idx.rows[k] = i
	}
	return idx
}

// IndexSeries 以毫秒键为序列建立索引。
func IndexSeries(s Series) *TimeIndex {
	keys := make([]int64, len(s.Rows))
	for i, row := range s.Rows {
		keys[i] = EpochKey(row.Time)
	}
	return NewTimeIndex(keys)
}

// Lookup 查找键对应行号。秒与毫秒之间恰好相差 1000 倍的键也视为命中。
func (idx *TimeIndex) Lookup(key int64) (int, bool) {
	if idx == nil {
		return 0, false
	}
	if i, ok := idx.rows[key]; ok {
		return i, true
	}
	if i, ok := idx.rows[key*1000]; ok {
		return i, true
	}
	if key%1000 == 0 {
		if i, ok := idx.rows[key/1000]; ok {
			return i, true
		}
	}
	return 0, false
}

// Len 返回索引条数。
func (idx *TimeIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.rows)
}
