package domain

import (
	"encoding/json"
	"strings"
)

// AddressInput carries raw address fields before validation.
type AddressInput struct {
	Street      string `json:"street"`
	City        string `json:"city"`
	Region      string `json:"region"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
	ContactName string `json:"contact_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Address is an immutable postal address. Two addresses are equal when all
// their fields are equal, so Address values compare with ==.
type Address struct {
	street      string
	city        string
	region      string
	postalCode  string
	country     string
	contactName string
	phone       string
}

// NewAddress trims and validates in. All violations are reported together.
func NewAddress(in AddressInput) (Address, error) {
	a := Address{
		street:      strings.TrimSpace(in.Street),
		city:        strings.TrimSpace(in.City),
		region:      strings.TrimSpace(in.Region),
		postalCode:  strings.TrimSpace(in.PostalCode),
		country:     strings.ToUpper(strings.TrimSpace(in.Country)),
		contactName: strings.TrimSpace(in.ContactName),
		phone:       strings.TrimSpace(in.Phone),
	}

	var v Violations
	required := []struct{ field, value string }{
		{"street", a.street},
		{"city", a.city},
		{"region", a.region},
		{"postal_code", a.postalCode},
		{"country", a.country},
	}
	for _, r := range required {
		if r.value == "" {
			v.Add(r.field, "is required")
		}
	}
	if a.country != "" && !isAlpha2(a.country) {
		v.Add("country", "must be an ISO 3166-1 alpha-2 country code")
	}
	if err := v.Err(); err != nil {
		return Address{}, err
	}
	return a, nil
}

func isAlpha2(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func (a Address) Street() string      { return a.street }
func (a Address) City() string        { return a.city }
func (a Address) Region() string      { return a.region }
func (a Address) PostalCode() string  { return a.postalCode }
func (a Address) Country() string     { return a.country }
func (a Address) ContactName() string { return a.contactName }
func (a Address) Phone() string       { return a.phone }

// IsZero reports whether a was never constructed.
func (a Address) IsZero() bool { return a == Address{} }

// Input returns the fields of a as an AddressInput.
func (a Address) Input() AddressInput {
	return AddressInput{
		Street:      a.street,
		City:        a.city,
		Region:      a.region,
		PostalCode:  a.postalCode,
		Country:     a.country,
		ContactName: a.contactName,
		Phone:       a.phone,
	}
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Input())
}

// UnmarshalJSON decodes through NewAddress so invalid JSON never yields an
// unvalidated Address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var in AddressInput
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	addr, err := NewAddress(in)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}
