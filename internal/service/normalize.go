package service

import (
	"math"
	"time"

	"github.com/kjstillabower/weather-snapshot-service/internal/client"
	"github.com/kjstillabower/weather-snapshot-service/internal/models"
)

// Daylight hours, inclusive.
const (
	dayStartHour = 6
	dayEndHour   = 18
)

// normalize maps upstream conditions onto a snapshot stamped at now. Absent fields become 0.
func normalize(c client.CurrentConditions, now time.Time, stampLoc, dayLoc *time.Location) models.WeatherSnapshot {
	stamp := now.In(stampLoc).Format(models.SnapshotTimeLayout)

	weatherCode := 0
	if len(c.Weather) > 0 && c.Weather[0].ID != nil {
		weatherCode = *c.Weather[0].ID
	}

	isDay := 0
	if h := now.In(dayLoc).Hour(); h >= dayStartHour && h <= dayEndHour {
		isDay = 1
	}

	return models.WeatherSnapshot{
		CurrentWeather: models.CurrentWeather{
			Temperature:   roundTo(valueOrZero(c.Main.Temp), 1),
			WindSpeed:     roundTo(valueOrZero(c.Wind.Speed), 1),
			// Whole degrees; a fractional upstream value is rounded half up, not truncated.
			WindDirection: int(roundTo(valueOrZero(c.Wind.Deg), 0)),
			IsDay:         isDay,
			WeatherCode:   weatherCode,
			Time:          stamp,
		},
		Hourly: models.Hourly{
			Time:               []string{stamp},
			RelativeHumidity2m: []int{int(roundTo(valueOrZero(c.Main.Humidity), 0))},
		},
	}
}

func valueOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// roundTo rounds half up (toward +Inf) to the given number of decimals.
func roundTo(x float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Floor(x*scale+0.5) / scale
}
