package manifest

import (
	"fmt"
	"strings"
	"time"
)

// Provenance records which resolution tier produced a document.
type Provenance uint8

const (
	ProvenanceUnknown Provenance = iota
	ProvenanceCache
	ProvenanceNetwork
	ProvenanceFallback
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceCache:
		return "cache"
	case ProvenanceNetwork:
		return "network"
	case ProvenanceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// MarshalText encodes provenance as its lowercase tier name.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts the lowercase tier names produced by MarshalText.
func (p *Provenance) UnmarshalText(text []byte) error {
	parsed, ok := ParseProvenance(string(text))
	if !ok {
		return fmt.Errorf("manifest: unknown provenance %q", string(text))
	}
	*p = parsed
	return nil
}

// ParseProvenance maps a tier name back to its Provenance value.
func ParseProvenance(raw string) (Provenance, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cache":
		return ProvenanceCache, true
	case "network":
		return ProvenanceNetwork, true
	case "fallback":
		return ProvenanceFallback, true
	case "unknown", "":
		return ProvenanceUnknown, true
	default:
		return ProvenanceUnknown, false
	}
}

// Document is one resolved manifest.
type Document struct {
	Scope      string     `json:"scope"`
	Payload    Payload    `json:"payload"`
	Provenance Provenance `json:"provenance"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Stamped returns a copy of d tagged with provenance p.
func (d Document) Stamped(p Provenance) Document {
	d.Provenance = p
	return d
}

// Payload is the project metadata carried by a manifest. The resolver never
// inspects it.
type Payload struct {
	Name                 string                `json:"name,omitempty" yaml:"name,omitempty"`
	Version              string                `json:"version,omitempty" yaml:"version,omitempty"`
	Description          string                `json:"description,omitempty" yaml:"description,omitempty"`
	Tags                 []string              `json:"tags,omitempty" yaml:"tags,omitempty"`
	CommunicationDetails *CommunicationDetails `json:"communication_details,omitempty" yaml:"communication_details,omitempty"`
	SecurityInfo         *SecurityInfo         `json:"security_info,omitempty" yaml:"security_info,omitempty"`
	MonetizationInfo     *MonetizationInfo     `json:"monetization_info,omitempty" yaml:"monetization_info,omitempty"`
	LicensingInfo        *LicensingInfo        `json:"licensing_info,omitempty" yaml:"licensing_info,omitempty"`
}

// IsZero reports whether the payload carries no fields at all.
func (p Payload) IsZero() bool {
	return p.Name == "" &&
		p.Version == "" &&
		p.Description == "" &&
		len(p.Tags) == 0 &&
		p.CommunicationDetails == nil &&
		p.SecurityInfo == nil &&
		p.MonetizationInfo == nil &&
		p.LicensingInfo == nil
}

type CommunicationDetails struct {
	AccessInterfaces   []AccessInterface `json:"access_interfaces,omitempty" yaml:"access_interfaces,omitempty"`
	DefaultDataFormats []string          `json:"default_data_formats,omitempty" yaml:"default_data_formats,omitempty"`
}

type AccessInterface struct {
	Type                         string   `json:"type,omitempty" yaml:"type,omitempty"`
	BaseURLOrAddress             string   `json:"base_url_or_address,omitempty" yaml:"base_url_or_address,omitempty"`
	AvailableMethodsOrOperations []string `json:"available_methods_or_operations,omitempty" yaml:"available_methods_or_operations,omitempty"`
}

type SecurityInfo struct {
	EncryptionRequired bool `json:"encryption_required" yaml:"encryption_required"`
}

type MonetizationInfo struct {
	Model                string `json:"model,omitempty" yaml:"model,omitempty"`
	PriceDetails         string `json:"price_details,omitempty" yaml:"price_details,omitempty"`
	Currency             string `json:"currency,omitempty" yaml:"currency,omitempty"`
	PricingPageURL       string `json:"pricing_page_url,omitempty" yaml:"pricing_page_url,omitempty"`
	CommissionEnabled    bool   `json:"commission_enabled" yaml:"commission_enabled"`
	CommissionDetailsURL string `json:"commission_details_url,omitempty" yaml:"commission_details_url,omitempty"`
}

type LicensingInfo struct {
	LicenseKey string `json:"license_key,omitempty" yaml:"license_key,omitempty"`
	LicenseURL string `json:"license_url,omitempty" yaml:"license_url,omitempty"`
}
