package location

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Resolver turns a raw location string (often an airport code) into a place
// name. An empty result means the location could not be resolved.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

var (
	bareCodeRe    = regexp.MustCompile(`^[A-Z]{3}$`)
	cityCodeRe    = regexp.MustCompile(`^(.+?)\s*\(([A-Z]{3})\)$`)
	codeCityRe    = regexp.MustCompile(`^([A-Z]{3})\s*[-–]\s*(.+)$`)
	leadingCodeRe = regexp.MustCompile(`^([A-Z]{3})\b`)
)

// AirportResolver resolves locations with an IATA code → city table.
type AirportResolver struct {
	cities map[string]string
}

// NewAirportResolver builds a resolver from the built-in table plus any
// overrides (code → city). Override codes are upper-cased.
func NewAirportResolver(overrides map[string]string) *AirportResolver {
	cities := make(map[string]string, len(defaultAirports)+len(overrides))
	for code, city := range defaultAirports {
		cities[code] = city
	}
	for code, city := range overrides {
		cities[strings.ToUpper(strings.TrimSpace(code))] = city
	}
	return &AirportResolver{cities: cities}
}

// Resolve implements Resolver. It never fails.
func (r *AirportResolver) Resolve(_ context.Context, raw string) (string, error) {
	return r.ToCity(raw), nil
}

// City returns the city for an airport code.
func (r *AirportResolver) City(code string) (string, bool) {
	city, ok := r.cities[code]
	return city, ok
}

// ToCity converts a location string to a city name. It handles bare codes
// ("HND"), "City (CODE)", "CODE - City" and a leading known code; anything
// else is returned trimmed as-is.
func (r *AirportResolver) ToCity(loc string) string {
	trimmed := strings.TrimSpace(loc)
	if trimmed == "" {
		return ""
	}

	if bareCodeRe.MatchString(trimmed) {
		if city, ok := r.cities[trimmed]; ok {
			return city
		}
		return trimmed
	}

	if m := cityCodeRe.FindStringSubmatch(trimmed); m != nil {
		cityPart := strings.TrimSpace(m[1])
		if len(cityPart) > 3 && !bareCodeRe.MatchString(cityPart) {
			return cityPart
		}
		if city, ok := r.cities[m[2]]; ok {
			return city
		}
		return cityPart
	}

	if m := codeCityRe.FindStringSubmatch(trimmed); m != nil {
		cityPart := strings.TrimSpace(m[2])
		if len(cityPart) > 3 {
			return cityPart
		}
		if city, ok := r.cities[m[1]]; ok {
			return city
		}
		return cityPart
	}

	if m := leadingCodeRe.FindStringSubmatch(trimmed); m != nil {
		if city, ok := r.cities[m[1]]; ok {
			return city
		}
	}

	return trimmed
}

// airportsFile is the on-disk shape of an airport override file:
//
//	airports:
//	  OPO: Porto
//	  FAO: Faro
type airportsFile struct {
	Airports map[string]string `yaml:"airports"`
}

// LoadAirports reads airport overrides from a YAML file.
func LoadAirports(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "location: read airports %s", path)
	}
	var f airportsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "location: parse airports")
	}
	return f.Airports, nil
}
