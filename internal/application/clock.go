package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default, pakai time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Since durasi dari start sampai Now() menurut clock c
func Since(c Clock, start time.Time) time.Duration {
	return c.Now().Sub(start)
}
