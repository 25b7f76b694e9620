// Package scenario holds the literal inputs the walkthrough types into the
// template wizard. Defaults reproduce the recurring STILO CONCEPTO hosting
// invoice; a YAML file can override any field.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
)

// Scenario is the set of values entered into the wizard and the text
// fragments used to recognize options, clients and listing rows.
type Scenario struct {
	IssuerMatch string `yaml:"issuer_match"`

	ClientQuery   string   `yaml:"client_query"`
	ClientMatches []string `yaml:"client_matches"`

	Series string `yaml:"series"`
	Folio  string `yaml:"folio"`

	PaymentForm string `yaml:"payment_form"`
	CFDIUse     string `yaml:"cfdi_use"`
	Currency    string `yaml:"currency"`

	ProductKeywords []string `yaml:"product_keywords"`
	ProductCode     string   `yaml:"product_code"`
	UnitCode        string   `yaml:"unit_code"`
	Description     string   `yaml:"description"`
	Quantity        string   `yaml:"quantity"`
	UnitPrice       string   `yaml:"unit_price"`

	// PriceFieldHints identify the unit-price input by value or placeholder
	// when it cannot be found by name.
	PriceFieldHints []string `yaml:"price_field_hints"`

	ListingMatches []string `yaml:"listing_matches"`
	ActiveStatus   string   `yaml:"active_status"`
}

// Default returns the built-in scenario.
func Default() Scenario {
	return Scenario{
		IssuerMatch:     "PES",
		ClientQuery:     "SCO020904",
		ClientMatches:   []string{"STILO", "SCO020904"},
		Series:          "H",
		Folio:           "{SiguienteFolio}",
		PaymentForm:     "03",
		CFDIUse:         "G03",
		Currency:        "MXN",
		ProductKeywords: []string{"HOSTING", "HOSP"},
		ProductCode:     "81112105",
		UnitCode:        "E48",
		Description:     "Hosting Web",
		Quantity:        "1",
		UnitPrice:       "1955",
		PriceFieldHints: []string{"600", "tcfixed"},
		ListingMatches:  []string{"STILO CONCEPTO", "SCO020904"},
		ActiveStatus:    "Activa",
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Scenario, error) {
	sc := Default()
	if strings.TrimSpace(path) == "" {
		return sc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, errs.Wrap(errs.NotFound, fmt.Sprintf("read scenario %s", path), err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Scenario, error) {
	sc := Default()
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, errs.Wrap(errs.InvalidArgument, "parse scenario", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// Validate rejects scenarios that could never match anything.
func (s Scenario) Validate() error {
	var problems []string
	if strings.TrimSpace(s.ClientQuery) == "" {
		problems = append(problems, "client_query is empty")
	}
	if len(nonEmpty(s.ClientMatches)) == 0 {
		problems = append(problems, "client_matches has no entries")
	}
	if strings.TrimSpace(s.UnitPrice) == "" {
		problems = append(problems, "unit_price is empty")
	}
	if len(nonEmpty(s.ListingMatches)) == 0 {
		problems = append(problems, "listing_matches has no entries")
	}
	if len(problems) > 0 {
		return errs.New(errs.InvalidArgument, "invalid scenario: "+strings.Join(problems, "; "))
	}
	return nil
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// ContainsAnyFold reports whether text contains any needle, comparing
// upper-cased forms. Empty needles never match.
func ContainsAnyFold(text string, needles ...string) bool {
	upper := strings.ToUpper(text)
	for _, n := range needles {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if strings.Contains(upper, strings.ToUpper(n)) {
			return true
		}
	}
	return false
}

// ContainsAny reports whether text contains any non-empty needle verbatim.
func ContainsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}
