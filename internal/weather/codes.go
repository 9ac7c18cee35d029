package weather

// UnknownCondition is used when a provider code or description is unavailable.
const UnknownCondition = "Unknown"

// weatherCodes maps Open-Meteo WMO weather codes to descriptions.
var weatherCodes = map[int]string{
	0:  "Clear Sky",
	1:  "Mainly Clear",
	2:  "Partly Cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing Rime Fog",
	51: "Light Drizzle",
	53: "Moderate Drizzle",
	55: "Dense Drizzle",
	61: "Slight Rain",
	63: "Moderate Rain",
	65: "Heavy Rain",
	71: "Slight Snow",
	73: "Moderate Snow",
	75: "Heavy Snow",
	77: "Snow Grains",
	80: "Slight Rain Showers",
	81: "Moderate Rain Showers",
	82: "Violent Rain Showers",
	85: "Slight Snow Showers",
	86: "Heavy Snow Showers",
	95: "Thunderstorm",
	96: "Thunderstorm with Slight Hail",
	99: "Thunderstorm with Heavy Hail",
}

// ConditionForCode returns the description for an Open-Meteo weather code.
func ConditionForCode(code int) string {
	if c, ok := weatherCodes[code]; ok {
		return c
	}
	return UnknownCondition
}
