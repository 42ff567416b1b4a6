// Command lora-scan enumerates LoRa radio devices reachable from this
// host over serial, BLE, and TCP (mDNS).
//
// Usage:
//
//	go run ./cmd/lora-scan [-timeout 5s] [-all-ports] [-v]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/lora-comms/loracomms-go/pkg/manager"
	"github.com/lora-comms/loracomms-go/pkg/transport"
)

func main() {
	timeout := flag.Duration("timeout", transport.DefaultScanTimeout, "per-backend scan timeout")
	allPorts := flag.Bool("all-ports", false, "include serial ports that do not look like radios")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	config := manager.DefaultConfig()
	config.ScanTimeout = *timeout
	if *allPorts {
		config.Backends = []transport.Backend{
			transport.NewSerialBackend(transport.SerialConfig{AllPorts: true}),
			transport.NewBLEBackend(transport.BLEConfig{}),
			transport.NewTCPBackend(transport.TCPConfig{}),
		}
	}
	if *verbose {
		config.Slog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	mgr := manager.New(config)
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*(*timeout))
	defer cancel()

	devices, err := mgr.ScanDevices(ctx)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return
	}

	fmt.Printf("Found %d device(s):\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  [%s] %s\n", d.Type, d.Name)
		fmt.Printf("      path: %s\n", d.Path)
		if d.Manufacturer != "" {
			fmt.Printf("      manufacturer: %s\n", d.Manufacturer)
		}
		fmt.Printf("      id: %s\n", d.ID)
	}
}
