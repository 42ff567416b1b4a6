package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lora-comms/loracomms-go/pkg/device"
)

func TestLikelyRadioPort(t *testing.T) {
	tests := []struct {
		name  string
		port  string
		isUSB bool
		vid   string
		pid   string
		want  bool
	}{
		{"known cp210x", "COM7", true, "10C4", "EA60", true},
		{"known ch340", "/dev/ttyUSB0", true, "1a86", "7523", true},
		{"unknown vid but usb name", "/dev/ttyUSB1", true, "dead", "beef", true},
		{"unknown vid, plain name", "COM3", true, "dead", "beef", false},
		{"mac usbserial", "/dev/cu.usbserial-0001", false, "", "", true},
		{"mac usbmodem", "/dev/cu.usbmodem14201", false, "", "", true},
		{"linux acm", "/dev/ttyACM0", false, "", "", true},
		{"wch bridge", "/dev/cu.wchusbserial54321", false, "", "", true},
		{"onboard uart", "/dev/ttyS0", false, "", "", false},
		{"bluetooth port", "/dev/cu.Bluetooth-Incoming-Port", false, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := likelyRadioPort(tt.port, tt.isUSB, tt.vid, tt.pid)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialBackendDefaults(t *testing.T) {
	b := NewSerialBackend(SerialConfig{})
	assert.Equal(t, device.TypeSerial, b.Kind())
	assert.Equal(t, DefaultBaudRate, b.config.BaudRate)
	assert.Equal(t, DefaultReadTimeout, b.config.ReadTimeout)
}
