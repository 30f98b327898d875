package chrono

import (
	"time"
)

var mexicoCity *time.Location

func init() {
	var err error
	mexicoCity, err = time.LoadLocation("America/Mexico_City")
	if err != nil {
		panic(err)
	}
}

// MexicoCity returns a [*time.Location] for America/Mexico_City, the
// timezone the catalog publisher dates its files in.
func MexicoCity() *time.Location {
	return mexicoCity
}

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in America/Mexico_City.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (StandardTime) Now() time.Time {
	return time.Now().In(mexicoCity)
}

// FixedTime is a TimeAPI that always returns the same instant.
type FixedTime time.Time

func (f FixedTime) Now() time.Time {
	return time.Time(f)
}
