package telemetry

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"container_telemetry/internal/models"
)

var ErrInvalidProfile = errors.New("invalid threshold profile")

// Threshold is one boundary of a channel with the operator message it produces.
type Threshold struct {
	Value    int             `yaml:"value" json:"value"`
	Message  string          `yaml:"message" json:"message"`
	Severity models.Severity `yaml:"severity" json:"severity"`
}

// ChannelProfile holds both threshold lists of a channel. RearmMargin is only
// consulted when one of the lists is empty: a latch of the populated list is
// released once the value moves RearmMargin past it in the other direction.
type ChannelProfile struct {
	Ascending   []Threshold `yaml:"ascending" json:"ascending"`
	Descending  []Threshold `yaml:"descending" json:"descending"`
	MaxDelta    int         `yaml:"max_delta" json:"max_delta"`
	RearmMargin int         `yaml:"rearm_margin" json:"rearm_margin"`
}

// Profiles maps every monitored channel to its thresholds.
type Profiles map[Channel]ChannelProfile

func DefaultProfiles() Profiles {
	return Profiles{
		ChannelHot: {
			Ascending: []Threshold{
				{40, "Hot compartment warmed up to 40°C", models.SeverityInfo},
				{50, "Hot compartment reached 50°C", models.SeveritySuccess},
				{60, "Hot compartment reached 60°C, ready for delivery", models.SeveritySuccess},
				{70, "Hot compartment above 70°C, check the heater", models.SeverityWarning},
			},
			Descending: []Threshold{
				{60, "Hot compartment cooled to 60°C", models.SeverityInfo},
				{50, "Hot compartment cooled to 50°C", models.SeverityInfo},
				{40, "Hot compartment dropped to 40°C", models.SeverityWarning},
				{30, "Hot compartment dropped to 30°C, food is getting cold", models.SeverityWarning},
			},
			MaxDelta: 15,
		},
		ChannelCold: {
			Ascending: []Threshold{
				{8, "Cold compartment warmed to 8°C", models.SeverityWarning},
				{12, "Cold compartment warmed to 12°C", models.SeverityWarning},
				{15, "Cold compartment at 15°C, cold chain broken", models.SeverityCritical},
			},
			Descending: []Threshold{
				{10, "Cold compartment cooled to 10°C", models.SeverityInfo},
				{5, "Cold compartment reached 5°C", models.SeveritySuccess},
				{2, "Cold compartment reached 2°C", models.SeveritySuccess},
				{0, "Cold compartment at 0°C, risk of freezing", models.SeverityWarning},
			},
			MaxDelta: 15,
		},
		ChannelBattery: {
			Descending: []Threshold{
				{50, "Battery at 50%", models.SeverityInfo},
				{20, "Battery low: 20%", models.SeverityWarning},
				{10, "Battery critical: 10%", models.SeverityCritical},
				{5, "Battery almost empty: 5%", models.SeverityCritical},
			},
			MaxDelta:    10,
			RearmMargin: 5,
		},
		ChannelShake: {
			Ascending: []Threshold{
				{3, "Shaking detected", models.SeverityWarning},
				{6, "Strong impact detected", models.SeverityWarning},
				{12, "Severe impact, check the cargo", models.SeverityCritical},
			},
			Descending: []Threshold{
				{1, "Container settled", models.SeverityInfo},
			},
		},
	}
}

// LoadProfiles reads a YAML document keyed by channel name (hot, cold,
// battery, shake) and overlays it on base. A channel present in the document
// replaces the base profile of that channel entirely.
func LoadProfiles(r io.Reader, base Profiles) (Profiles, error) {
	var doc map[string]ChannelProfile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}

	out := make(Profiles, len(base)+len(doc))
	for ch, p := range base {
		out[ch] = p
	}
	for name, p := range doc {
		ch, ok := ParseChannel(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidProfile, name)
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, name, err)
		}
		out[ch] = p
	}
	return out.normalized(), nil
}

func (p ChannelProfile) validate() error {
	if p.MaxDelta < 0 || p.RearmMargin < 0 {
		return errors.New("max_delta and rearm_margin must not be negative")
	}
	for _, list := range [][]Threshold{p.Ascending, p.Descending} {
		seen := make(map[int]bool, len(list))
		for _, t := range list {
			if seen[t.Value] {
				return fmt.Errorf("duplicate threshold %d", t.Value)
			}
			seen[t.Value] = true
			if t.Message == "" {
				return fmt.Errorf("threshold %d has no message", t.Value)
			}
		}
	}
	return nil
}

// normalized returns a copy with ascending lists sorted low to high and
// descending lists high to low, which is the order events are emitted in.
func (p Profiles) normalized() Profiles {
	out := make(Profiles, len(p))
	for ch, prof := range p {
		asc := append([]Threshold(nil), prof.Ascending...)
		desc := append([]Threshold(nil), prof.Descending...)
		sort.Slice(asc, func(i, j int) bool { return asc[i].Value < asc[j].Value })
		sort.Slice(desc, func(i, j int) bool { return desc[i].Value > desc[j].Value })
		prof.Ascending, prof.Descending = asc, desc
		out[ch] = prof
	}
	return out
}
