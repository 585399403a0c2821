// Package factors holds the cached emission-factor tables used when no
// live data source is configured. Values are per-unit kg CO2e except the
// grid intensities, which are g CO2/kWh. Sources: EPA, DEFRA, Climatiq.
package factors

import "strings"

// Factor categories accepted by Lookup.
const (
	CategoryFood      = "food"
	CategoryTransport = "transport"
	CategoryFlights   = "flights"
	CategoryEnergy    = "energy"
)

// GlobalAvgGridIntensity is the fallback when a region is unknown (g CO2/kWh).
const GlobalAvgGridIntensity = 400

// food: kg CO2e per kg
var food = map[string]float64{
	"beef":       27.0,
	"lamb":       39.2,
	"pork":       12.1,
	"chicken":    6.9,
	"fish":       6.1,
	"eggs":       4.8,
	"cheese":     13.5,
	"milk":       3.2,
	"rice":       2.7,
	"pasta":      1.2,
	"bread":      1.4,
	"vegetables": 2.0,
	"fruits":     1.1,
	"tofu":       2.0,
	"lentils":    0.9,
	"beans":      0.8,
}

// transport: kg CO2e per km
var transport = map[string]float64{
	"car_petrol":   0.21,
	"car_diesel":   0.19,
	"car_hybrid":   0.12,
	"car_electric": 0.05, // grid-dependent
	"bus":          0.089,
	"train":        0.041,
	"subway":       0.031,
	"bicycle":      0.0,
	"walking":      0.0,
	"motorcycle":   0.11,
	"taxi":         0.23,
	"rideshare":    0.15,
}

// flights: kg CO2e per km per passenger
var flights = map[string]float64{
	"domestic_economy":    0.255,
	"short_haul_economy":  0.156,
	"short_haul_business": 0.234,
	"long_haul_economy":   0.148,
	"long_haul_business":  0.429,
	"long_haul_first":     0.591,
}

// energy: kg CO2e per kWh (natural_gas per m3, heating_oil per liter)
var energy = map[string]float64{
	"electricity_us_avg":    0.42,
	"electricity_uk":        0.21,
	"electricity_eu_avg":    0.28,
	"electricity_renewable": 0.02,
	"natural_gas":           2.0,
	"heating_oil":           2.68,
}

// gridIntensity: g CO2/kWh by region
var gridIntensity = map[string]float64{
	"california": 210,
	"texas":      380,
	"new_york":   280,
	"washington": 85,
	"florida":    400,
	"uk":         180,
	"france":     50,
	"germany":    350,
	"india":      700,
	"china":      550,
	"japan":      470,
	"australia":  650,
	"brazil":     85,
	"canada":     120,
}

var tables = map[string]map[string]float64{
	CategoryFood:      food,
	CategoryTransport: transport,
	CategoryFlights:   flights,
	CategoryEnergy:    energy,
}

// Lookup returns the emission factor for an item in a category. Keys are
// normalized the same way the tables are stored: lowercased, spaces to
// underscores.
func Lookup(category, key string) (float64, bool) {
	table, ok := tables[category]
	if !ok {
		return 0, false
	}
	factor, ok := table[normalizeKey(key)]
	return factor, ok
}

// Keys lists the known items in a category, for error messages.
func Keys(category string) []string {
	table, ok := tables[category]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	return keys
}

// GridIntensity returns the grid carbon intensity for a region in
// g CO2/kWh. Unknown regions fall back to the global average; the second
// return reports whether the region was found in the table.
func GridIntensity(region string) (float64, bool) {
	if intensity, ok := gridIntensity[normalizeKey(region)]; ok {
		return intensity, true
	}
	return GlobalAvgGridIntensity, false
}

// Estimate computes kg CO2e for amount units of the keyed activity
// (kg of food, km travelled, kWh or m3 of energy). Electricity with a
// known region uses the regional grid intensity instead of the table
// factor.
func Estimate(category, key string, amount float64, region string) (float64, bool) {
	if category == CategoryEnergy && strings.HasPrefix(normalizeKey(key), "electricity") && region != "" {
		intensity, _ := GridIntensity(region)
		return amount * intensity / 1000, true
	}
	factor, ok := Lookup(category, key)
	if !ok {
		return 0, false
	}
	return amount * factor, true
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
}
