package functions

import (
	"encoding/json"
	"strings"
	"time"
)

type builtin struct {
	def     Definition
	handler Handler
}

func builtins() []builtin {
	return []builtin{
		{
			def: Definition{
				Name:        "get_current_time",
				Description: "Get the current time",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"timezone": {
							"type": "string",
							"description": "The timezone to get the current time for, e.g., 'UTC', 'local'"
						}
					},
					"required": []
				}`),
			},
			handler: getCurrentTime,
		},
		{
			def: Definition{
				Name:        "get_current_weather",
				Description: "Get the current weather in a given location",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"location": {
							"type": "string",
							"description": "The city and state, e.g., 'San Francisco, CA'"
						},
						"unit": {
							"type": "string",
							"enum": ["celsius", "fahrenheit"],
							"description": "The unit of temperature to use"
						}
					},
					"required": ["location"]
				}`),
			},
			handler: getCurrentWeather,
		},
	}
}

// now is swapped out in tests for deterministic clock output.
var now = time.Now

func getCurrentTime(args map[string]any) map[string]any {
	timezone := stringArg(args, "timezone", "local")

	current := now()
	timezoneName := "local"
	if strings.EqualFold(timezone, "utc") {
		current = current.UTC()
		timezoneName = "UTC"
	}

	return map[string]any{
		"time":     current.Format("03:04:05 PM"),
		"date":     current.Format("Monday, January 02, 2006"),
		"timezone": timezoneName,
	}
}

func getCurrentWeather(args map[string]any) map[string]any {
	location := stringArg(args, "location", "Unknown")
	unit := stringArg(args, "unit", "celsius")

	// Mock weather data; a production deployment would call a weather API.
	temperature := 22
	if unit != "celsius" {
		temperature = 72
	}

	return map[string]any{
		"location":    location,
		"temperature": temperature,
		"unit":        unit,
		"condition":   "Partly Cloudy",
		"humidity":    65,
		"wind_speed":  10,
	}
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
