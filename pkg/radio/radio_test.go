package radio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("EU868")
	require.NoError(t, err)
	assert.Equal(t, RegionEU868, r)

	_, err = ParseRegion("ATLANTIS")
	assert.Error(t, err)
}

func TestDefaultForRegion(t *testing.T) {
	cfg, err := DefaultForRegion(RegionEU868)
	require.NoError(t, err)
	assert.Equal(t, PresetLongFast, cfg.Preset)
	assert.InDelta(t, 869.525, cfg.FrequencyMHz, 0.001)
	assert.NoError(t, cfg.Validate())

	_, err = DefaultForRegion(RegionUnset)
	assert.ErrorIs(t, err, ErrInvalidRegion)
}

func TestForPresetAllCombinations(t *testing.T) {
	regions := []Region{
		RegionUS, RegionEU433, RegionEU868, RegionCN, RegionJP,
		RegionANZ, RegionKR, RegionTW, RegionRU, RegionIN,
	}
	for _, region := range regions {
		for _, preset := range Presets() {
			cfg, err := ForPreset(region, preset)
			require.NoError(t, err, "%s/%s", region, preset)
			assert.NoError(t, cfg.Validate(), "%s/%s", region, preset)
		}
	}
}

func TestForPresetInvalid(t *testing.T) {
	_, err := ForPreset(RegionUS, Preset(99))
	assert.ErrorIs(t, err, ErrInvalidPreset)
}

func TestPresetRangeTradeoff(t *testing.T) {
	fast, err := ForPreset(RegionUS, PresetShortFast)
	require.NoError(t, err)
	slow, err := ForPreset(RegionUS, PresetVeryLongSlow)
	require.NoError(t, err)

	assert.Less(t, fast.SpreadingFactor, slow.SpreadingFactor)
	assert.Greater(t, fast.BandwidthKHz, slow.BandwidthKHz)
}

func TestConfigValidate(t *testing.T) {
	base, err := DefaultForRegion(RegionUS)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad region", func(c *Config) { c.Region = RegionUnset }},
		{"bad preset", func(c *Config) { c.Preset = Preset(50) }},
		{"zero frequency", func(c *Config) { c.FrequencyMHz = 0 }},
		{"sf too low", func(c *Config) { c.SpreadingFactor = 6 }},
		{"sf too high", func(c *Config) { c.SpreadingFactor = 13 }},
		{"bad coding rate", func(c *Config) { c.CodingRate = 9 }},
		{"zero power", func(c *Config) { c.TxPowerDBM = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigValidateRegionalPowerLimit(t *testing.T) {
	cfg, err := DefaultForRegion(RegionEU433)
	require.NoError(t, err)

	cfg.TxPowerDBM = 30 // EU433 caps at 12 dBm
	assert.ErrorIs(t, cfg.Validate(), ErrTxPowerTooHigh)
}

func TestAdminPayloadRoundTrip(t *testing.T) {
	want, err := ForPreset(RegionEU868, PresetLongSlow)
	require.NoError(t, err)

	payload, err := EncodeAdminPayload(want)
	require.NoError(t, err)

	got, err := DecodeAdminPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAdminPayloadRejectsInvalid(t *testing.T) {
	cfg, err := DefaultForRegion(RegionUS)
	require.NoError(t, err)
	cfg.SpreadingFactor = 99

	_, err = EncodeAdminPayload(cfg)
	assert.Error(t, err)

	_, err = DecodeAdminPayload([]byte{0x01, 0x02})
	assert.Error(t, err)
}
