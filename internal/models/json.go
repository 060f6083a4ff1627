package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONBStringArray is a custom type for handling string arrays in JSONB
type JSONBStringArray []string

// Value implements the driver.Valuer interface
func (a JSONBStringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (a *JSONBStringArray) Scan(value interface{}) error {
	if value == nil {
		*a = JSONBStringArray{}
		return nil
	}
	bytes, err := jsonBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, a)
}

// Ingredient is a single parsed ingredient line
type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// String renders the ingredient the way it would appear in a recipe card
func (i Ingredient) String() string {
	out := i.Name
	if i.Unit != "" {
		out = i.Unit + " " + out
	}
	if i.Quantity != "" {
		out = i.Quantity + " " + out
	}
	return out
}

// Ingredients is stored as a JSONB array of ingredient objects
type Ingredients []Ingredient

// Value implements the driver.Valuer interface
func (in Ingredients) Value() (driver.Value, error) {
	if len(in) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]Ingredient(in))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (in *Ingredients) Scan(value interface{}) error {
	if value == nil {
		*in = Ingredients{}
		return nil
	}
	bytes, err := jsonBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, in)
}

// Names returns the bare ingredient names
func (in Ingredients) Names() []string {
	names := make([]string, 0, len(in))
	for _, i := range in {
		names = append(names, i.Name)
	}
	return names
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", value)
	}
}
