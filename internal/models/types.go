package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// StringSlice is a custom type for storing string arrays in JSON
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	return json.Unmarshal(asBytes(value), s)
}

// IntSlice is a custom type for storing integer sets (weekdays, months) in JSON
type IntSlice []int

func (s IntSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *IntSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	return json.Unmarshal(asBytes(value), s)
}

// Contains reports whether n is present in the slice
func (s IntSlice) Contains(n int) bool {
	for _, v := range s {
		if v == n {
			return true
		}
	}
	return false
}

// JSON is a custom type for storing arbitrary JSON data
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	return json.Unmarshal(asBytes(value), j)
}

// GetString returns the value under key coerced to a string ("" if absent)
func (j JSON) GetString(key string) string {
	v, ok := j[key]
	if !ok {
		return ""
	}
	return cast.ToString(v)
}

// GetInt returns the value under key coerced to an int (0 if absent)
func (j JSON) GetInt(key string) int {
	v, ok := j[key]
	if !ok {
		return 0
	}
	return cast.ToInt(v)
}

// GetFloat returns the value under key coerced to a float64 (0 if absent)
func (j JSON) GetFloat(key string) float64 {
	v, ok := j[key]
	if !ok {
		return 0
	}
	return cast.ToFloat64(v)
}

// Has reports whether key is present with a non-empty value
func (j JSON) Has(key string) bool {
	v, ok := j[key]
	if !ok || v == nil {
		return false
	}
	return cast.ToString(v) != ""
}

func asBytes(value interface{}) []byte {
	switch v := value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprint(v))
	}
}
