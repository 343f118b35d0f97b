package core

import "fmt"

// Category is the closed set of expense kinds. Each variant has a fixed
// display color used by the client charts.
type Category string

const (
	Generic   Category = "generic"
	Bills     Category = "bills"
	Rent      Category = "rent"
	Mortgage  Category = "mortgage"
	Insurance Category = "insurance"
	Taxes     Category = "taxes"
	Other     Category = "other"
)

// categoryColors maps each category to its display color.
var categoryColors = map[Category]string{
	Generic:   "#0ad2ff",
	Bills:     "#2962ff",
	Rent:      "#9500ff",
	Mortgage:  "#ff0059",
	Insurance: "#ff8c00",
	Taxes:     "#b4e600",
	Other:     "#0fffdb",
}

// Categories returns all valid categories in display order.
func Categories() []Category {
	return []Category{Generic, Bills, Rent, Mortgage, Insurance, Taxes, Other}
}

// Color returns the fixed display color for the category, or the Other color
// for unknown values.
func (c Category) Color() string {
	if color, ok := categoryColors[c]; ok {
		return color
	}
	return categoryColors[Other]
}

func (c Category) Validate() error {
	if _, ok := categoryColors[c]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}
	return nil
}
