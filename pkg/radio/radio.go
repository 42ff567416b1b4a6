// Package radio describes LoRa modem settings: regulatory regions, modem
// presets, and the tuning parameters pushed to a device over the admin
// channel.
package radio

import (
	"errors"
	"fmt"
)

// Region identifies a regulatory frequency plan.
type Region uint8

// Supported regulatory regions.
const (
	RegionUnset Region = iota
	RegionUS
	RegionEU433
	RegionEU868
	RegionCN
	RegionJP
	RegionANZ
	RegionKR
	RegionTW
	RegionRU
	RegionIN
)

var regionNames = map[Region]string{
	RegionUnset: "UNSET",
	RegionUS:    "US",
	RegionEU433: "EU433",
	RegionEU868: "EU868",
	RegionCN:    "CN",
	RegionJP:    "JP",
	RegionANZ:   "ANZ",
	RegionKR:    "KR",
	RegionTW:    "TW",
	RegionRU:    "RU",
	RegionIN:    "IN",
}

func (r Region) String() string {
	if name, ok := regionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Region(%d)", uint8(r))
}

// IsValid reports whether r is a known region other than RegionUnset.
func (r Region) IsValid() bool {
	_, ok := regionNames[r]
	return ok && r != RegionUnset
}

// ParseRegion resolves a region name such as "EU868".
func ParseRegion(s string) (Region, error) {
	for r, name := range regionNames {
		if name == s {
			return r, nil
		}
	}
	return RegionUnset, fmt.Errorf("unknown region %q", s)
}

// baseFrequencyMHz is the default center frequency per region.
var baseFrequencyMHz = map[Region]float64{
	RegionUS:    906.875,
	RegionEU433: 433.175,
	RegionEU868: 869.525,
	RegionCN:    470.0,
	RegionJP:    920.8,
	RegionANZ:   916.25,
	RegionKR:    921.9,
	RegionTW:    923.0,
	RegionRU:    869.05,
	RegionIN:    866.0,
}

// maxTxPowerDBM is the regulatory transmit power ceiling per region.
var maxTxPowerDBM = map[Region]int{
	RegionUS:    30,
	RegionEU433: 12,
	RegionEU868: 27,
	RegionCN:    19,
	RegionJP:    16,
	RegionANZ:   30,
	RegionKR:    19,
	RegionTW:    27,
	RegionRU:    20,
	RegionIN:    30,
}

// Preset selects a predefined modem parameter set trading range for
// airtime.
type Preset uint8

// Modem presets, fastest first.
const (
	PresetShortFast Preset = iota
	PresetShortSlow
	PresetMediumFast
	PresetMediumSlow
	PresetLongFast
	PresetLongSlow
	PresetVeryLongSlow
)

var presetNames = map[Preset]string{
	PresetShortFast:    "ShortFast",
	PresetShortSlow:    "ShortSlow",
	PresetMediumFast:   "MediumFast",
	PresetMediumSlow:   "MediumSlow",
	PresetLongFast:     "LongFast",
	PresetLongSlow:     "LongSlow",
	PresetVeryLongSlow: "VeryLongSlow",
}

func (p Preset) String() string {
	if name, ok := presetNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Preset(%d)", uint8(p))
}

// IsValid reports whether p is a known preset.
func (p Preset) IsValid() bool {
	_, ok := presetNames[p]
	return ok
}

// Presets returns all known presets, fastest first.
func Presets() []Preset {
	return []Preset{
		PresetShortFast,
		PresetShortSlow,
		PresetMediumFast,
		PresetMediumSlow,
		PresetLongFast,
		PresetLongSlow,
		PresetVeryLongSlow,
	}
}

// presetParams holds the modem parameters a preset expands to.
type presetParams struct {
	bandwidthKHz    float64
	spreadingFactor int
	codingRate      int
}

var presetTable = map[Preset]presetParams{
	PresetShortFast:    {250, 7, 5},
	PresetShortSlow:    {250, 8, 5},
	PresetMediumFast:   {250, 9, 5},
	PresetMediumSlow:   {250, 10, 5},
	PresetLongFast:     {250, 11, 5},
	PresetLongSlow:     {125, 12, 8},
	PresetVeryLongSlow: {62.5, 12, 8},
}

// Config errors.
var (
	ErrInvalidRegion  = errors.New("invalid region")
	ErrInvalidPreset  = errors.New("invalid modem preset")
	ErrTxPowerTooHigh = errors.New("tx power exceeds regional limit")
)

// Config is a complete LoRa modem configuration.
type Config struct {
	// Region is the regulatory frequency plan.
	Region Region

	// Preset is the modem parameter set the remaining fields derive from.
	Preset Preset

	// FrequencyMHz is the center frequency.
	FrequencyMHz float64

	// BandwidthKHz is the channel bandwidth.
	BandwidthKHz float64

	// SpreadingFactor is the LoRa spreading factor (7 to 12).
	SpreadingFactor int

	// CodingRate is the denominator of the 4/x coding rate (5 to 8).
	CodingRate int

	// TxPowerDBM is the transmit power.
	TxPowerDBM int
}

// DefaultForRegion returns the LongFast configuration for a region.
func DefaultForRegion(region Region) (Config, error) {
	return ForPreset(region, PresetLongFast)
}

// ForPreset expands a region and preset into a full configuration.
func ForPreset(region Region, preset Preset) (Config, error) {
	if !region.IsValid() {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidRegion, region)
	}
	params, ok := presetTable[preset]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidPreset, preset)
	}

	power := maxTxPowerDBM[region]
	if power > 20 {
		power = 20
	}
	return Config{
		Region:          region,
		Preset:          preset,
		FrequencyMHz:    baseFrequencyMHz[region],
		BandwidthKHz:    params.bandwidthKHz,
		SpreadingFactor: params.spreadingFactor,
		CodingRate:      params.codingRate,
		TxPowerDBM:      power,
	}, nil
}

// Validate checks the configuration against modem limits and the
// region's regulatory ceiling.
func (c Config) Validate() error {
	if !c.Region.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidRegion, c.Region)
	}
	if !c.Preset.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidPreset, c.Preset)
	}
	if c.FrequencyMHz <= 0 {
		return fmt.Errorf("invalid frequency %.3f MHz", c.FrequencyMHz)
	}
	if c.SpreadingFactor < 7 || c.SpreadingFactor > 12 {
		return fmt.Errorf("invalid spreading factor %d", c.SpreadingFactor)
	}
	if c.CodingRate < 5 || c.CodingRate > 8 {
		return fmt.Errorf("invalid coding rate 4/%d", c.CodingRate)
	}
	if c.TxPowerDBM <= 0 {
		return fmt.Errorf("invalid tx power %d dBm", c.TxPowerDBM)
	}
	if limit := maxTxPowerDBM[c.Region]; c.TxPowerDBM > limit {
		return fmt.Errorf("%w: %d dBm > %d dBm for %s",
			ErrTxPowerTooHigh, c.TxPowerDBM, limit, c.Region)
	}
	return nil
}
