package cashasset

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// rateFile is the on-disk layout of a rate series:
//
//	unit: percent        # or "decimal" (default)
//	rates:
//	  - {date: 2024-01-02, rate: 5.25}
type rateFile struct {
	Unit  string `yaml:"unit"`
	Rates []struct {
		Date string  `yaml:"date"`
		Rate float64 `yaml:"rate"`
	} `yaml:"rates"`
}

// LoadRates reads an annual rate series from a YAML file. Rates given in
// percent are converted to decimals.
func LoadRates(path string) (RateSeries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRates(data)
}

// ParseRates decodes the YAML rate file layout.
func ParseRates(data []byte) (RateSeries, error) {
	var f rateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding rate file: %w", err)
	}

	scale := 1.0
	switch f.Unit {
	case "", "decimal":
	case "percent":
		scale = 0.01
	default:
		return nil, fmt.Errorf("decoding rate file: unknown unit %q", f.Unit)
	}

	out := make(RateSeries, 0, len(f.Rates))
	for _, r := range f.Rates {
		d, err := time.Parse(domain.DateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("decoding rate file: date %q: %w", r.Date, err)
		}
		out = append(out, Rate{Date: d, Annual: r.Rate * scale})
	}
	return out, nil
}
