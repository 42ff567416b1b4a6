package radio

import (
	"fmt"

	"github.com/lora-comms/loracomms-go/pkg/wire"
)

// adminConfigPayload is the wire form of a Config, keyed by field number
// like the rest of the protocol.
type adminConfigPayload struct {
	Region          uint8   `cbor:"1,keyasint"`
	Preset          uint8   `cbor:"2,keyasint"`
	FrequencyMHz    float64 `cbor:"3,keyasint"`
	BandwidthKHz    float64 `cbor:"4,keyasint"`
	SpreadingFactor int     `cbor:"5,keyasint"`
	CodingRate      int     `cbor:"6,keyasint"`
	TxPowerDBM      int     `cbor:"7,keyasint"`
}

// EncodeAdminPayload validates the configuration and serializes it for an
// admin frame.
func EncodeAdminPayload(c Config) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	payload, err := wire.Marshal(adminConfigPayload{
		Region:          uint8(c.Region),
		Preset:          uint8(c.Preset),
		FrequencyMHz:    c.FrequencyMHz,
		BandwidthKHz:    c.BandwidthKHz,
		SpreadingFactor: c.SpreadingFactor,
		CodingRate:      c.CodingRate,
		TxPowerDBM:      c.TxPowerDBM,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode radio config: %w", err)
	}
	return payload, nil
}

// DecodeAdminPayload parses a serialized radio configuration.
func DecodeAdminPayload(payload []byte) (Config, error) {
	var p adminConfigPayload
	if err := wire.Unmarshal(payload, &p); err != nil {
		return Config{}, fmt.Errorf("failed to decode radio config: %w", err)
	}
	c := Config{
		Region:          Region(p.Region),
		Preset:          Preset(p.Preset),
		FrequencyMHz:    p.FrequencyMHz,
		BandwidthKHz:    p.BandwidthKHz,
		SpreadingFactor: p.SpreadingFactor,
		CodingRate:      p.CodingRate,
		TxPowerDBM:      p.TxPowerDBM,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
