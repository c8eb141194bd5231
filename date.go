package visengine

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
)

// ComputeRefDate fills in RefDate's modified-Julian-day and apparent
// sidereal time fields from a calendar reference epoch, using
// soniakeys/meeus for the Julian-day and sidereal-time conversions the
// way the ingest collaborator's FITS reader would compute them before
// handing off a DataLoaded Observation (spec.md §6 "reference date
// fields populated").
func ComputeRefDate(epoch time.Time, secondsIntoYearAtFirst float64) RefDate {
	year, month, day := epoch.Date()
	frac := float64(epoch.Hour())/24 + float64(epoch.Minute())/1440 + float64(epoch.Second())/86400
	jd := julian.CalendarGregorianToJD(year, int(month), float64(day)+frac)

	ast := sidereal.Apparent(jd)

	return RefDate{
		Year:                      year,
		ReferenceMJD:              jd - 2400000.5,
		SecondsIntoYearAtFirst:    secondsIntoYearAtFirst,
		ApparentSiderealTimeAtRef: ast.Rad(),
	}
}

// DayOfYear converts a (year, day-of-year) pair to a calendar date, the
// same decomposition used by the ingest collaborator to resolve the
// yyyy/ddd reference-time format found in most VLBI archive headers.
func DayOfYear(year, doy int) time.Time {
	month, day := julian.DayOfYearToCalendar(doy, julian.LeapYearGregorian(year))
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
