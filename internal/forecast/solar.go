package forecast

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// DaylightWindow returns the sunrise/sunset times for the given date and
// location, adapted from the teacher's sun/example use of suncalc.
// IsDaylight is its only caller; the load scheduler and the planner do
// not use it.
func DaylightWindow(date time.Time, latitude, longitude float64) (sunrise, sunset time.Time) {
	times := suncalc.GetTimes(date, latitude, longitude)
	return times["sunrise"], times["sunset"]
}

// SolarElevationDeg returns the sun's elevation angle in degrees above the
// horizon at t for the given location; negative values mean the sun is
// below the horizon.
func SolarElevationDeg(t time.Time, latitude, longitude float64) float64 {
	pos := suncalc.GetPosition(t, latitude, longitude)
	return pos.Altitude * 180 / math.Pi
}

// IsDaylight reports whether t falls within the daylight window for the
// given location.
func IsDaylight(t time.Time, latitude, longitude float64) bool {
	sunrise, sunset := DaylightWindow(t, latitude, longitude)
	return !t.Before(sunrise) && t.Before(sunset)
}
