package building

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultPropertyTypes is the property-type vocabulary the classifiers were
// trained with.
var DefaultPropertyTypes = []string{
	"Distribution Center",
	"Financial Office",
	"Hospital (General Medical & Surgical)",
	"Hotel",
	"K-12 School",
	"Medical Office",
	"Mixed Use Property",
	"Multifamily Housing",
	"Non-Refrigerated Warehouse",
	"Office",
	"Residence Hall/Dormitory",
	"Residential Care Facility",
	"Retail Store",
	"Senior Care Community",
	"Senior Living Community",
	"Warehouse",
	"Worship Facility",
}

// DefaultYears are the reporting years covered by the training data.
var DefaultYears = []int{2020, 2021, 2022, 2023}

// Form defaults shown on a fresh dashboard.
const (
	DefaultPropertyType    = "Office"
	DefaultYear            = 2022
	DefaultEnergyStarScore = 75.0
	DefaultSiteEUI         = 150.0
	DefaultGHGEmissions    = 500.0
)

// Catalog is the enumerated domain for the categorical fields.
type Catalog struct {
	propertyTypes []string
	byKey         map[string]string
	years         map[int]struct{}
}

// NewCatalog builds a catalog. Labels are matched case-insensitively after
// Unicode normalisation; two labels that collide under that folding are
// rejected.
func NewCatalog(propertyTypes []string, years []int) (*Catalog, error) {
	if len(propertyTypes) == 0 {
		return nil, errors.New("catalog needs at least one property type")
	}
	if len(years) == 0 {
		return nil, errors.New("catalog needs at least one year")
	}
	c := &Catalog{
		propertyTypes: make([]string, 0, len(propertyTypes)),
		byKey:         make(map[string]string, len(propertyTypes)),
		years:         make(map[int]struct{}, len(years)),
	}
	for _, label := range propertyTypes {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, errors.New("empty property type label")
		}
		key := foldLabel(label)
		if prev, ok := c.byKey[key]; ok {
			return nil, fmt.Errorf("property type %q duplicates %q", label, prev)
		}
		c.byKey[key] = label
		c.propertyTypes = append(c.propertyTypes, label)
	}
	for _, y := range years {
		c.years[y] = struct{}{}
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultPropertyTypes, DefaultYears)
	if err != nil {
		panic(err)
	}
	return c
}

// Narrow returns a catalog restricted to the given labels and years. Every
// requested value must already be in c, so configuration can only shrink the
// domain the models know about.
func (c *Catalog) Narrow(propertyTypes []string, years []int) (*Catalog, error) {
	if len(propertyTypes) == 0 {
		propertyTypes = c.PropertyTypes()
	}
	if len(years) == 0 {
		years = c.Years()
	}
	labels := make([]string, 0, len(propertyTypes))
	for _, p := range propertyTypes {
		label, ok := c.LookupPropertyType(p)
		if !ok {
			return nil, fmt.Errorf("property type %q is not in the catalog", p)
		}
		labels = append(labels, label)
	}
	for _, y := range years {
		if !c.HasYear(y) {
			return nil, fmt.Errorf("year %d is not in the catalog", y)
		}
	}
	return NewCatalog(labels, years)
}

// LookupPropertyType maps raw text to its canonical label.
func (c *Catalog) LookupPropertyType(raw string) (string, bool) {
	label, ok := c.byKey[foldLabel(raw)]
	return label, ok
}

func (c *Catalog) HasYear(year int) bool {
	_, ok := c.years[year]
	return ok
}

// PropertyTypes returns the labels in catalog order.
func (c *Catalog) PropertyTypes() []string {
	return append([]string(nil), c.propertyTypes...)
}

// Years returns the supported years in ascending order.
func (c *Catalog) Years() []int {
	years := make([]int, 0, len(c.years))
	for y := range c.years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func foldLabel(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}
