package models

import "time"

// SnapshotTimeLayout is the minute-precision layout used for snapshot timestamps.
const SnapshotTimeLayout = "2006-01-02T15:04"

// WeatherSnapshot is the normalized payload served to clients and stored in the blob store.
type WeatherSnapshot struct {
	CurrentWeather CurrentWeather `json:"current_weather"`
	Hourly         Hourly         `json:"hourly"`
}

type CurrentWeather struct {
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windspeed"`
	WindDirection int     `json:"winddirection"`
	IsDay         int     `json:"is_day"`
	WeatherCode   int     `json:"weathercode"`
	Time          string  `json:"time"`
}

type Hourly struct {
	Time               []string `json:"time"`
	RelativeHumidity2m []int    `json:"relativehumidity_2m"`
}

// ObservedAt parses CurrentWeather.Time in loc. See ParseStamp.
func (s WeatherSnapshot) ObservedAt(loc *time.Location) (time.Time, error) {
	return ParseStamp(s.CurrentWeather.Time, loc)
}

// Offset-less layouts are read in the caller's zone; RFC3339 stamps carry their own offset.
var stampLayouts = []string{SnapshotTimeLayout, "2006-01-02T15:04:05", time.RFC3339}

// ParseStamp parses a snapshot timestamp. The minute layout written by this service is tried
// first, then seconds precision and RFC3339. Offset-less stamps are read in loc.
func ParseStamp(stamp string, loc *time.Location) (time.Time, error) {
	var firstErr error
	for _, layout := range stampLayouts {
		t, err := time.ParseInLocation(layout, stamp, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
