package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/xhcrc-v1.json
var xhcrcSchemaJSON string

// XHCRC is the legacy .xhcrc settings file. Flags may be booleans or 0/1.
type XHCRC struct {
	HIDVendorID   *uint16 `json:"HID_VID"`
	HIDProductID  *uint16 `json:"HID_PID"`
	ProbeZ        *string `json:"ProbeZ"`
	WorkPos       *flag   `json:"WorkPos"`
	DryRun        *flag   `json:"DryRun"`
	DryRunButtons *flag   `json:"DryRunButtons"`
	DryRunJog     *flag   `json:"DryRunJog"`
	DryRunProbeZ  *flag   `json:"DryRunProbeZ"`
	// spelling used by existing files
	DruRunProbeZ *flag `json:"DruRunProbeZ"`
}

type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", data)
	}
	return nil
}

type XHCRCValidator struct {
	schema *jsonschema.Schema
}

func NewXHCRCValidator() (*XHCRCValidator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("xhcrc-v1.json",
		strings.NewReader(xhcrcSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("xhcrc-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &XHCRCValidator{schema: schema}, nil
}

func (v *XHCRCValidator) Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ParseXHCRC validates and decodes .xhcrc content.
func ParseXHCRC(data []byte) (*XHCRC, error) {
	validator, err := NewXHCRCValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(data); err != nil {
		return nil, err
	}

	var rc XHCRC
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("failed to decode .xhcrc: %w", err)
	}
	return &rc, nil
}

// LoadXHCRC reads a legacy .xhcrc file.
func LoadXHCRC(path string) (*XHCRC, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	rc, err := ParseXHCRC(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rc, nil
}

// Apply layers the fields present in rc over c.
func (rc *XHCRC) Apply(c *Config) {
	if rc.HIDVendorID != nil {
		c.Pendant.VendorID = *rc.HIDVendorID
	}
	if rc.HIDProductID != nil {
		c.Pendant.ProductID = *rc.HIDProductID
	}
	if rc.ProbeZ != nil {
		c.Actions.ProbeCommand = *rc.ProbeZ
	}
	if rc.WorkPos != nil {
		c.Pendant.InitialWorkCoords = bool(*rc.WorkPos)
	}
	if rc.DryRun != nil {
		c.Actions.DryRun = bool(*rc.DryRun)
	}
	if rc.DryRunButtons != nil {
		c.Actions.DryRunButtons = bool(*rc.DryRunButtons)
	}
	if rc.DryRunJog != nil {
		c.Actions.DryRunJog = bool(*rc.DryRunJog)
	}
	if rc.DruRunProbeZ != nil {
		c.Actions.DryRunProbe = bool(*rc.DruRunProbeZ)
	}
	if rc.DryRunProbeZ != nil {
		c.Actions.DryRunProbe = bool(*rc.DryRunProbeZ)
	}
}
