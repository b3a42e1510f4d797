package loyalty

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Program is the on-disk form of the tier configuration.
//
//	tiers:
//	  - name: Bronze
//	    threshold: 0
//	  - name: Argent
//	    threshold: 50
//	    bonus_points: 10
//	    bonus_amount: "1.00"
//	    gift_card_amount: "5.00"
type Program struct {
	Tiers []Tier `yaml:"tiers"`
}

// LoadProgram reads a YAML program file and builds its tier table. An empty
// path yields the default tiers.
func LoadProgram(path string) (*TierTable, error) {
	if path == "" {
		return NewTierTable(DefaultTiers())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program file: %w", err)
	}
	return ParseProgram(raw)
}

// ParseProgram builds a tier table from YAML bytes.
func ParseProgram(raw []byte) (*TierTable, error) {
	var p Program
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse program file: %w", err)
	}
	table, err := NewTierTable(p.Tiers)
	if err != nil {
		return nil, fmt.Errorf("invalid program file: %w", err)
	}
	return table, nil
}
