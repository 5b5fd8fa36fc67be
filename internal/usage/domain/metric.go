package domain

import "time"

// Metric is a billable event category. The set is closed, product-defined.
type Metric string

const (
	MetricPlaygroundRequests Metric = "playground_total_requests"
	MetricAPIRequests        Metric = "api_requests"
	MetricAPITokens          Metric = "api_tokens"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricPlaygroundRequests, MetricAPIRequests, MetricAPITokens:
		return true
	default:
		return false
	}
}

// Granularity is the aggregation window a counter bucket spans.
type Granularity string

const (
	GranularityMinute  Granularity = "minute"
	GranularityHour    Granularity = "hour"
	GranularityDay     Granularity = "day"
	GranularityMonth   Granularity = "month"
	GranularityAllTime Granularity = "all_time"
)

func (g Granularity) Valid() bool {
	switch g {
	case GranularityMinute, GranularityHour, GranularityDay, GranularityMonth, GranularityAllTime:
		return true
	default:
		return false
	}
}

// allTimeEpoch is the sentinel bucket boundary for all_time counters so
// every event collapses into a single row.
var allTimeEpoch = time.Unix(0, 0).UTC()

// PeriodStart truncates t to the bucket boundary for the granularity. Two
// events inside the same window always map to the same boundary.
func PeriodStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	switch g {
	case GranularityMinute:
		return t.Truncate(time.Minute)
	case GranularityHour:
		return t.Truncate(time.Hour)
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return allTimeEpoch
	}
}
