package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ServiceType is the water service a meter measures.
type ServiceType int

const (
	Unknown ServiceType = iota
	HotWater
	ColdWater
)

// String returns the label used in reports.
func (t ServiceType) String() string {
	switch t {
	case HotWater:
		return "Hot Water"
	case ColdWater:
		return "Cold Water"
	default:
		return "Unknown"
	}
}

// Code returns the short machine-readable form.
func (t ServiceType) Code() string {
	switch t {
	case HotWater:
		return "hot"
	case ColdWater:
		return "cold"
	default:
		return "unknown"
	}
}

// ParseServiceType accepts either the code or the report label.
func ParseServiceType(s string) (ServiceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hot", "hot water":
		return HotWater, nil
	case "cold", "cold water":
		return ColdWater, nil
	case "unknown", "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown service type %q", s)
}

// MarshalJSON encodes the service type as its code.
func (t ServiceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Code())
}

// UnmarshalJSON decodes a code or label.
func (t *ServiceType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseServiceType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalYAML encodes the service type as its code.
func (t ServiceType) MarshalYAML() (interface{}, error) {
	return t.Code(), nil
}
