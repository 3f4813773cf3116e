package backtest

import (
	"sort"
	"time"

	"quantdesk/internal/market"
	"quantdesk/internal/strategy"
)

// customLookahead 为自定义时刻允许读取的未来数据窗口。
// 时刻前后 1 秒内的观测都视为该时刻的数据。
const customLookahead = time.Second

// unionTimeline 返回所有序列时间戳的去重升序并集。
func unionTimeline(series map[string]market.Series) []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range series {
		for _, row := range s.Rows {
			key := market.EpochKey(row.Time)
			if _, ok := seen[key]; !ok {
				seen[key] = row.Time
			}
		}
	}
	timeline := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return timeline
}

// clockTimeline 以 交易日 × 时刻 生成合成时间轴。
func clockTimeline(calendar *market.Calendar, start, end time.Time, offsets []time.Duration) []time.Time {
	days := calendar.TradingDays(start, end)
	timeline := make([]time.Time, 0, len(days)*len(offsets))
	for _, day := range days {
		for _, offset := range offsets {
			ts := day.Add(offset)
			if ts.Before(start) || ts.After(end) {
				continue
			}
			timeline = append(timeline, ts)
		}
	}
	return timeline
}

// feed 为单一标的的回放游标，只向前移动。
type feed struct {
	series market.Series
	index  *market.TimeIndex
	cursor int
}

func newFeed(series market.Series) *feed {
	return &feed{series: series, index: market.IndexSeries(series), cursor: -1}
}

// advance 将游标移到 ts+lookahead 之前（含）的最后一行。
func (f *feed) advance(ts time.Time, lookahead time.Duration) {
	if i, ok := f.index.Lookup(market.EpochKey(ts)); ok && i > f.cursor {
		f.cursor = i
	}
	limit := ts.Add(lookahead)
	rows := f.series.Rows
	for f.cursor+1 < len(rows) && !rows[f.cursor+1].Time.After(limit) {
		f.cursor++
	}
}

// quote 返回当日最新已知观测；当日尚无观测时返回空标记。
func (f *feed) quote(date string) strategy.Quote {
	if f == nil || f.cursor < 0 {
		return strategy.Quote{Empty: true}
	}
	row := f.series.Rows[f.cursor]
	if market.DateKey(row.Time) != date {
		return strategy.Quote{Empty: true}
	}
	return strategy.Quote{Row: row}
}
