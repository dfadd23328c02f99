package market

import "time"

// BucketSeconds is the width of one candle interval.
const BucketSeconds int64 = 60

type Tick struct {
	Symbol          string
	Bid             float64
	Ask             float64
	TimestampMillis int64
}

type Candle struct {
	Symbol        string
	IntervalStart int64
	Open          float64
	High          float64
	Low           float64
	Close         float64
}

// Start returns the interval start as a UTC time.
func (c Candle) Start() time.Time {
	return time.Unix(c.IntervalStart, 0).UTC()
}

// Bucket floors a millisecond timestamp to the start (in seconds) of its
// one-minute interval.
func Bucket(timestampMillis int64) int64 {
	return floorDiv(timestampMillis, BucketSeconds*1000) * BucketSeconds
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
