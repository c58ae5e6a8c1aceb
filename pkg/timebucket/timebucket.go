// Package timebucket converts timestamps to the integer time buckets used by
// traffic records and parses query durations.
//
// A minute bucket is the decimal number yyyyMMddHHmm, so 2024-03-05 09:07 UTC
// becomes 202403050907. Buckets of the same granularity sort like the times
// they represent, which is what range clauses rely on.
package timebucket

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/metaquery/errors"
)

// Step is the granularity of a query duration.
type Step string

// Supported steps
const (
	StepSecond Step = "SECOND"
	StepMinute Step = "MINUTE"
	StepHour   Step = "HOUR"
	StepDay    Step = "DAY"
)

var stepLayouts = map[Step]string{
	StepSecond: "2006-01-02 150405",
	StepMinute: "2006-01-02 1504",
	StepHour:   "2006-01-02 15",
	StepDay:    "2006-01-02",
}

// Layout returns the time layout for the step's duration strings.
func (s Step) Layout() (string, bool) {
	layout, ok := stepLayouts[s]
	return layout, ok
}

// MinuteBucket returns the yyyyMMddHHmm bucket of a millisecond timestamp in UTC.
func MinuteBucket(timestampMillis int64) int64 {
	return MinuteBucketOf(time.UnixMilli(timestampMillis))
}

// MinuteBucketOf returns the yyyyMMddHHmm bucket of t in UTC.
func MinuteBucketOf(t time.Time) int64 {
	t = t.UTC()
	return int64(t.Year())*100000000 +
		int64(t.Month())*1000000 +
		int64(t.Day())*10000 +
		int64(t.Hour())*100 +
		int64(t.Minute())
}

// FromMinuteBucket converts a minute bucket back to the start of its minute.
func FromMinuteBucket(bucket int64) (time.Time, error) {
	minute := bucket % 100
	hour := bucket / 100 % 100
	day := bucket / 10000 % 100
	month := bucket / 1000000 % 100
	year := bucket / 100000000

	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), 0, 0, time.UTC)
	if MinuteBucketOf(t) != bucket {
		return time.Time{}, errors.WrapInvalid(fmt.Errorf("%d is not a minute bucket", bucket),
			"timebucket", "FromMinuteBucket", "decode bucket")
	}
	return t, nil
}

// Duration is a query time window expressed as formatted strings.
type Duration struct {
	Start string
	End   string
	Step  Step
}

// Millis parses the window into millisecond timestamps.
// End must not precede start.
func (d Duration) Millis() (start, end int64, err error) {
	step := Step(strings.ToUpper(string(d.Step)))
	layout, ok := step.Layout()
	if !ok {
		return 0, 0, errors.WrapInvalid(errors.ErrInvalidDuration, "Duration", "Millis",
			fmt.Sprintf("unsupported step %q", d.Step))
	}

	startTime, err := time.ParseInLocation(layout, d.Start, time.UTC)
	if err != nil {
		return 0, 0, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidDuration, err),
			"Duration", "Millis", "parse start")
	}
	endTime, err := time.ParseInLocation(layout, d.End, time.UTC)
	if err != nil {
		return 0, 0, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidDuration, err),
			"Duration", "Millis", "parse end")
	}
	if endTime.Before(startTime) {
		return 0, 0, errors.WrapInvalid(errors.ErrInvalidDuration, "Duration", "Millis",
			"end precedes start")
	}

	return startTime.UnixMilli(), endTime.UnixMilli(), nil
}
