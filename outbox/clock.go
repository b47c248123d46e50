package outbox

import "time"

// Clock abstracts time.Now so claim and retry arithmetic can be tested
// against a fixed instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().In(time.UTC)
}

func SystemClock() Clock {
	return systemClock{}
}
