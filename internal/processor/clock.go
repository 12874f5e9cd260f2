package processor

import "time"

// Clock - источник текущего времени в секундах Unix.
// Должен быть неубывающим.
type Clock interface {
	Now() int64
}

// SystemClock берёт время из системных часов.
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// ClockFunc адаптирует функцию к Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 {
	return f()
}
