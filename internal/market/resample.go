package market

import "math"

// ResampleDaily 将日内序列聚合为日线。
func ResampleDaily(s Series) Series {
	out := Series{Symbol: s.Symbol, Period: Period1d}
	if s.Period == Period1d {
		out.Rows = append([]Row(nil), s.Rows...)
		return out
	}

	var (
		current Row
		key     string
	)
	for _, row := range s.Rows {
		price := row.Price()
		if price <= 0 {
			continue
		}
		k := DateKey(row.Time)
		if k != key {
			if key != "" {
				out.Rows = append(out.Rows, current)
			}
			key = k
			open := row.Open
			if open <= 0 {
				open = price
			}
			high, low := row.High, row.Low
			if high <= 0 {
				high = price
			}
			if low <= 0 {
				low = price
			}
			current = Row{
				Time:   StartOfDay(row.Time),
				Open:   open,
				High:   high,
				Low:    low,
				Close:  price,
				Volume: row.Volume,
				Amount: row.Amount,
			}
			continue
		}
		high, low := row.High, row.Low
		if high <= 0 {
			high = price
		}
		if low <= 0 {
			low = price
		}
		current.High = math.Max(current.High, high)
		current.Low = math.Min(current.Low, low)
		current.Close = price
		current.Volume += row.Volume
		current.Amount += row.Amount
	}
	if key != "" {
		out.Rows = append(out.Rows, current)
	}
	return out
}
