package building

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldIssue describes why one raw field was rejected.
type FieldIssue struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// ValidationError is returned when raw input does not form a valid record.
// Issues are listed in canonical column order.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = fmt.Sprintf("%s: %s", issue.Field, issue.Reason)
	}
	return "invalid building input: " + strings.Join(parts, "; ")
}

// Field returns the issue for the named column, if any.
func (e *ValidationError) Field(name string) (FieldIssue, bool) {
	for _, issue := range e.Issues {
		if issue.Field == name {
			return issue, true
		}
	}
	return FieldIssue{}, false
}

// Score bounds for ENERGY STAR.
const (
	MinEnergyStarScore = 1.0
	MaxEnergyStarScore = 100.0
)

// Assembler validates raw input against a catalog.
type Assembler struct {
	catalog *Catalog
}

func NewAssembler(catalog *Catalog) *Assembler {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Assembler{catalog: catalog}
}

func (a *Assembler) Catalog() *Catalog {
	return a.catalog
}

var defaultAssembler = NewAssembler(nil)

// Assemble validates raw against the default catalog.
func Assemble(raw RawInput) (BuildingRecord, error) {
	return defaultAssembler.Assemble(raw)
}

// Assemble coerces every field and returns the record, or a *ValidationError
// listing all rejected fields.
func (a *Assembler) Assemble(raw RawInput) (BuildingRecord, error) {
	var (
		rec    BuildingRecord
		issues []FieldIssue
	)
	reject := func(field, value, reason string) {
		issues = append(issues, FieldIssue{Field: field, Value: value, Reason: reason})
	}

	if label, ok := a.catalog.LookupPropertyType(raw.PropertyType); ok {
		rec.propertyType = label
	} else if strings.TrimSpace(raw.PropertyType) == "" {
		reject(ColPropertyType, raw.PropertyType, "is required")
	} else {
		reject(ColPropertyType, raw.PropertyType, "is not a supported property type")
	}

	if year, reason := parseYear(raw.CalendarYear); reason != "" {
		reject(ColCalendarYear, raw.CalendarYear, reason)
	} else if !a.catalog.HasYear(year) {
		reject(ColCalendarYear, raw.CalendarYear, fmt.Sprintf("must be one of %v", a.catalog.Years()))
	} else {
		rec.calendarYear = year
	}

	if v, reason := parseNumber(raw.EnergyStarScore); reason != "" {
		reject(ColEnergyStarScore, raw.EnergyStarScore, reason)
	} else if v < MinEnergyStarScore || v > MaxEnergyStarScore {
		reject(ColEnergyStarScore, raw.EnergyStarScore, "must be between 1 and 100")
	} else {
		rec.energyStarScore = v
	}

	if v, reason := parseNumber(raw.SiteEUI); reason != "" {
		reject(ColSiteEUI, raw.SiteEUI, reason)
	} else if v < 0 {
		reject(ColSiteEUI, raw.SiteEUI, "must not be negative")
	} else {
		rec.siteEUI = v
	}

	if v, reason := parseNumber(raw.GHGEmissions); reason != "" {
		reject(ColGHGEmissions, raw.GHGEmissions, reason)
	} else if v < 0 {
		reject(ColGHGEmissions, raw.GHGEmissions, "must not be negative")
	} else {
		rec.ghgEmissions = v
	}

	if len(issues) > 0 {
		return BuildingRecord{}, &ValidationError{Issues: issues}
	}
	return rec, nil
}

func parseNumber(s string) (float64, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "is required"
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, "must be a number"
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "must be a finite number"
	}
	return v, ""
}

func parseYear(s string) (int, string) {
	v, reason := parseNumber(s)
	if reason != "" {
		return 0, reason
	}
	if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, "must be a whole year"
	}
	return int(v), ""
}
