package domain

import (
	"testing"
	"time"
)

func TestPeriodStartTruncatesToBucketBoundary(t *testing.T) {
	at := time.Date(2026, time.March, 14, 10, 37, 42, 123456789, time.UTC)

	cases := []struct {
		granularity Granularity
		want        time.Time
	}{
		{GranularityMinute, time.Date(2026, time.March, 14, 10, 37, 0, 0, time.UTC)},
		{GranularityHour, time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)},
		{GranularityDay, time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)},
		{GranularityMonth, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{GranularityAllTime, time.Unix(0, 0).UTC()},
	}
	for _, tc := range cases {
		if got := PeriodStart(at, tc.granularity); !got.Equal(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.granularity, got, tc.want)
		}
	}
}

func TestPeriodStartSameWindowSameBoundary(t *testing.T) {
	first := time.Date(2026, time.March, 14, 10, 5, 0, 0, time.UTC)
	second := time.Date(2026, time.March, 14, 10, 55, 59, 0, time.UTC)

	if !PeriodStart(first, GranularityHour).Equal(PeriodStart(second, GranularityHour)) {
		t.Fatal("events inside the same hour must share a bucket boundary")
	}
	if PeriodStart(first, GranularityMinute).Equal(PeriodStart(second, GranularityMinute)) {
		t.Fatal("events in different minutes must not share a minute bucket")
	}
}

func TestPeriodStartNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	local := time.Date(2026, time.March, 14, 3, 30, 0, 0, loc)

	got := PeriodStart(local, GranularityDay)
	want := time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected UTC day boundary %v, got %v", want, got)
	}
}

func TestMetricAndGranularitySetsAreClosed(t *testing.T) {
	for _, m := range []Metric{MetricPlaygroundRequests, MetricAPIRequests, MetricAPITokens} {
		if !m.Valid() {
			t.Errorf("expected %s to be valid", m)
		}
	}
	if Metric("storage_bytes").Valid() {
		t.Error("unknown metric must be rejected")
	}

	for _, g := range []Granularity{GranularityMinute, GranularityHour, GranularityDay, GranularityMonth, GranularityAllTime} {
		if !g.Valid() {
			t.Errorf("expected %s to be valid", g)
		}
	}
	if Granularity("week").Valid() {
		t.Error("unknown granularity must be rejected")
	}
}
