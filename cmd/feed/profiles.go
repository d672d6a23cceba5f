package main

// profile is a preset link speed for feed.
type profile struct {
	Rate       int64 // bytes per second
	SerialMode bool
}

// profiles maps names to common link speeds (downlink direction).
var profiles = map[string]profile{
	// Serial connections
	"9600": {Rate: 960, SerialMode: true}, // 9600 baud / 10 bits per byte
	"2400": {Rate: 240, SerialMode: true},

	// Dial-up modems
	"dialup": {Rate: 56000 / 8},

	// Mobile networks
	"edge":     {Rate: 200000 / 8},
	"3g":       {Rate: 1000000 / 8},
	"lte":      {Rate: 20000000 / 8},
	"lte-poor": {Rate: 2000000 / 8},

	// Wired connections
	"dsl":   {Rate: 8000000 / 8},
	"cable": {Rate: 50000000 / 8},
	"gige":  {Rate: 1000000000 / 8},

	// Satellite
	"satellite":     {Rate: 25000000 / 8}, // Starlink-ish
	"satellite-geo": {Rate: 10000000 / 8}, // traditional VSAT

	// WiFi scenarios
	"wifi-poor": {Rate: 2000000 / 8},
	"wifi-bad":  {Rate: 500000 / 8},
}
