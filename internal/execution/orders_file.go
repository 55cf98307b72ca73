package execution

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// ordersFile is the on-disk layout of an order set. Every key of a row
// other than date and asset names an order column:
//
//	orders:
//	  - {date: 2024-01-02, asset: SPY, delta_shares: 10, alt: 5}
type ordersFile struct {
	Orders []map[string]yaml.Node `yaml:"orders"`
}

// LoadOrderSet reads an order set from a YAML file.
func LoadOrderSet(path string) (*OrderSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseOrderSet(data)
}

// ParseOrderSet decodes the YAML order file layout.
func ParseOrderSet(data []byte) (*OrderSet, error) {
	var f ordersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding order file: %w", err)
	}
	set := NewOrderSet()
	for i, row := range f.Orders {
		var dateStr, asset string
		if n, ok := row["date"]; ok {
			dateStr = n.Value
		}
		if n, ok := row["asset"]; ok {
			asset = n.Value
		}
		if dateStr == "" || asset == "" {
			return nil, fmt.Errorf("order %d: date and asset are required", i)
		}
		date, err := time.Parse(domain.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		for col, n := range row {
			if col == "date" || col == "asset" {
				continue
			}
			var q float64
			if err := n.Decode(&q); err != nil {
				return nil, fmt.Errorf("order %d column %s: %w", i, col, err)
			}
			set.Set(col, date, asset, q)
		}
	}
	return set, nil
}
