package types

import "time"

// Car is the full attribute record produced by a scan. It is stored as one
// document and always written wholesale.
type Car struct {
	ID           string    `json:"id"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Horsepower   string    `json:"horsepower"`
	Speed        string    `json:"speed"`
	Acceleration string    `json:"acceleration"`
	ColorName    string    `json:"colorName"`
	Displacement string    `json:"displacement"`
	Cylinders    string    `json:"cylinders"`
	Architecture string    `json:"architecture"`
	Turbo        string    `json:"turbo"`
	ImageURL     string    `json:"imageURL"`
	IsFavorite   bool      `json:"isFavorite"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Title returns the "brand model" caption shown for a record
func (c Car) Title() string {
	switch {
	case c.Brand == "":
		return c.Model
	case c.Model == "":
		return c.Brand
	}
	return c.Brand + " " + c.Model
}

// Attribute is a labelled value used when listing a record's details
type Attribute struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Attributes returns the detail grid of a record in display order
func (c Car) Attributes() []Attribute {
	return []Attribute{
		{"Power", c.Horsepower},
		{"Speed", c.Speed},
		{"Acceleration", c.Acceleration},
		{"Color", c.ColorName},
		{"Displacement", c.Displacement},
		{"Cylinders", c.Cylinders},
		{"Architecture", c.Architecture},
		{"Turbo", c.Turbo},
	}
}

// ProcessingOptions contains options for preparing images
type ProcessingOptions struct {
	SendFormat  string
	SendSize    int
	SendQuality int
	Format      string
	Quality     int
	Lossless    bool
}
