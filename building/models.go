// Package building holds the building attributes a prediction is made from
// and the assembler that turns raw form input into them.
package building

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Column names in the order the classifiers were trained on. Tree models
// silently mispredict when columns arrive in any other order.
const (
	ColPropertyType    = "property_type"
	ColCalendarYear    = "calendar_year"
	ColEnergyStarScore = "energy_star_score"
	ColSiteEUI         = "site_eui"
	ColGHGEmissions    = "ghg_emissions"
)

// Columns returns the canonical column order.
func Columns() []string {
	return []string{
		ColPropertyType,
		ColCalendarYear,
		ColEnergyStarScore,
		ColSiteEUI,
		ColGHGEmissions,
	}
}

// BuildingRecord is one validated prediction input. It can only be built by an
// Assembler and is never modified afterwards.
type BuildingRecord struct {
	propertyType    string
	calendarYear    int
	energyStarScore float64
	siteEUI         float64
	ghgEmissions    float64
}

func (r BuildingRecord) PropertyType() string     { return r.propertyType }
func (r BuildingRecord) CalendarYear() int        { return r.calendarYear }
func (r BuildingRecord) EnergyStarScore() float64 { return r.energyStarScore }
func (r BuildingRecord) SiteEUI() float64         { return r.siteEUI }
func (r BuildingRecord) GHGEmissions() float64    { return r.ghgEmissions }

// Cell is a single column value of a record row.
type Cell struct {
	Column      string
	Categorical bool
	Text        string
	Number      float64
}

// Row returns the record's cells in canonical column order.
func (r BuildingRecord) Row() []Cell {
	return []Cell{
		{Column: ColPropertyType, Categorical: true, Text: r.propertyType},
		{Column: ColCalendarYear, Number: float64(r.calendarYear)},
		{Column: ColEnergyStarScore, Number: r.energyStarScore},
		{Column: ColSiteEUI, Number: r.siteEUI},
		{Column: ColGHGEmissions, Number: r.ghgEmissions},
	}
}

func (r BuildingRecord) String() string {
	return fmt.Sprintf("%s/%d score=%.1f eui=%.1f ghg=%.1f",
		r.propertyType, r.calendarYear, r.energyStarScore, r.siteEUI, r.ghgEmissions)
}

func (r BuildingRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PropertyType    string  `json:"property_type"`
		CalendarYear    int     `json:"calendar_year"`
		EnergyStarScore float64 `json:"energy_star_score"`
		SiteEUI         float64 `json:"site_eui"`
		GHGEmissions    float64 `json:"ghg_emissions"`
	}{r.propertyType, r.calendarYear, r.energyStarScore, r.siteEUI, r.ghgEmissions})
}

// RawInput carries unvalidated form values.
type RawInput struct {
	PropertyType    string `json:"property_type"`
	CalendarYear    string `json:"calendar_year"`
	EnergyStarScore string `json:"energy_star_score"`
	SiteEUI         string `json:"site_eui"`
	GHGEmissions    string `json:"ghg_emissions"`
}

// UnmarshalJSON accepts every field either as a JSON string or as a bare
// number, since API clients send both.
func (in *RawInput) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	targets := map[string]*string{
		ColPropertyType:    &in.PropertyType,
		ColCalendarYear:    &in.CalendarYear,
		ColEnergyStarScore: &in.EnergyStarScore,
		ColSiteEUI:         &in.SiteEUI,
		ColGHGEmissions:    &in.GHGEmissions,
	}
	for name, target := range targets {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			continue
		}
		value, err := rawText(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*target = value
	}
	return nil
}

func rawText(raw json.RawMessage) (string, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", string(raw))
	}
	return n.String(), nil
}

// RawFromValues builds a RawInput from already typed values. Used by the CLI.
func RawFromValues(propertyType string, year int, score, siteEUI, ghg float64) RawInput {
	return RawInput{
		PropertyType:    propertyType,
		CalendarYear:    strconv.Itoa(year),
		EnergyStarScore: strconv.FormatFloat(score, 'f', -1, 64),
		SiteEUI:         strconv.FormatFloat(siteEUI, 'f', -1, 64),
		GHGEmissions:    strconv.FormatFloat(ghg, 'f', -1, 64),
	}
}
