// Command lora-chat is an interactive mesh messaging client.
//
// Usage:
//
//	go run ./cmd/lora-chat [-config lora-chat.yaml] [-capture events.cbor] [-v]
//
// Commands inside the REPL:
//
//	/scan                 list reachable devices
//	/connect <path> [typ] connect to a device (typ: serial, ble, tcp)
//	/nodes                list mesh nodes seen by the device
//	/send <dest> <text>   send to a node id or "!broadcast"
//	/history [n]          show recent messages
//	/stats                show connection counters
//	/radio <region> [preset]  push a modem configuration
//	/quit                 exit
//
// Bare input (no leading slash) broadcasts to the mesh.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/lora-comms/loracomms-go/pkg/channel"
	"github.com/lora-comms/loracomms-go/pkg/connection"
	"github.com/lora-comms/loracomms-go/pkg/gateway"
	evlog "github.com/lora-comms/loracomms-go/pkg/log"
	"github.com/lora-comms/loracomms-go/pkg/manager"
	"github.com/lora-comms/loracomms-go/pkg/radio"
	"github.com/lora-comms/loracomms-go/pkg/wire"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	capturePath := flag.String("capture", "", "write protocol events to a CBOR capture file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var cfg fileConfig
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	mgrConfig := manager.DefaultConfig()
	if *verbose {
		mgrConfig.Slog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	if *capturePath != "" {
		capture, err := evlog.NewCapture(*capturePath)
		if err != nil {
			log.Fatalf("Failed to open capture file: %v", err)
		}
		defer capture.Close()
		mgrConfig.Logger = capture
		log.Printf("Capturing protocol events to %s", *capturePath)
	}
	if cfg.Channel.PSK != "" {
		key, err := channel.NewKey(cfg.Channel.Name, []byte(cfg.Channel.PSK))
		if err != nil {
			log.Fatalf("Failed to derive channel key: %v", err)
		}
		mgrConfig.Connection.Cipher = key
		log.Printf("Channel encryption enabled (channel %q)", cfg.Channel.Name)
	}

	mgr := manager.New(mgrConfig)
	defer mgr.Close()

	var gw *gateway.Gateway
	if cfg.MQTT.Broker != "" {
		var err error
		gw, err = gateway.New(gateway.Config{
			BrokerURL:   cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Slog:        mgrConfig.Slog,
		})
		if err != nil {
			log.Fatalf("Failed to create MQTT gateway: %v", err)
		}
		if err := gw.Start(); err != nil {
			log.Fatalf("Failed to start MQTT gateway: %v", err)
		}
		defer gw.Close()
	}

	repl := &repl{mgr: mgr, gw: gw}
	if gw != nil {
		gwHook := gw.Hook()
		mgr.SetEventHook(func(deviceID string, ev wire.Event) {
			gwHook(deviceID, ev)
			repl.onEvent(deviceID, ev)
		})
	} else {
		mgr.SetEventHook(repl.onEvent)
	}

	if cfg.Device.Path != "" {
		devType, err := parseDeviceType(cfg.Device.Type)
		if err != nil {
			log.Fatalf("Bad config: %v", err)
		}
		repl.connect(cfg.Device.Path, devType.String())
	}

	rl, err := readline.New("mesh> ")
	if err != nil {
		log.Fatalf("Failed to init readline: %v", err)
	}
	defer rl.Close()
	repl.rl = rl

	fmt.Println("lora-chat ready. Type /scan to find devices, /quit to exit.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if !repl.handle(strings.TrimSpace(line)) {
			return
		}
	}
}

// repl holds the interactive session state: the one active device and
// the console used for asynchronous event printing.
type repl struct {
	mgr *manager.Manager
	gw  *gateway.Gateway
	rl  *readline.Instance

	deviceID string
}

// handle executes one REPL line. Returns false to exit.
func (r *repl) handle(line string) bool {
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		r.send(wire.BroadcastID, line)
		return true
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/quit", "/exit":
		return false
	case "/scan":
		r.scan()
	case "/connect":
		if len(args) < 1 {
			fmt.Println("usage: /connect <path> [serial|ble|tcp]")
			return true
		}
		typ := "serial"
		if len(args) > 1 {
			typ = args[1]
		}
		r.connect(args[0], typ)
	case "/nodes":
		r.nodes()
	case "/send":
		if len(args) < 2 {
			fmt.Println("usage: /send <dest> <text>")
			return true
		}
		r.send(args[0], strings.Join(args[1:], " "))
	case "/history":
		limit := 20
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				limit = n
			}
		}
		r.showHistory(limit)
	case "/stats":
		r.showStats()
	case "/radio":
		if len(args) < 1 {
			fmt.Println("usage: /radio <region> [preset]")
			return true
		}
		preset := ""
		if len(args) > 1 {
			preset = args[1]
		}
		r.setRadio(args[0], preset)
	default:
		fmt.Printf("unknown command %s\n", cmd)
	}
	return true
}

func (r *repl) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	devices, err := r.mgr.ScanDevices(ctx)
	if err != nil {
		fmt.Printf("scan failed: %v\n", err)
		return
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return
	}
	for _, d := range devices {
		fmt.Printf("  [%s] %s  %s\n", d.Type, d.Path, d.Name)
	}
}

// connect dials with paced retries: serial radios often reboot when the
// port opens and need a moment before the handshake can succeed.
func (r *repl) connect(path, typ string) {
	devType, err := parseDeviceType(normalizeType(typ))
	if err != nil {
		fmt.Println(err)
		return
	}

	const maxAttempts = 3
	bo := connection.NewBackoffWithConfig(connection.BackoffConfig{
		Initial: time.Second,
		Max:     10 * time.Second,
	})
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		id, err := r.mgr.Connect(ctx, path, devType)
		cancel()
		if err == nil {
			r.deviceID = id
			fmt.Printf("connected to %s (device %s)\n", path, id)
			return
		}
		if bo.Attempts() >= maxAttempts-1 {
			fmt.Printf("connect failed: %v\n", err)
			return
		}
		delay := bo.Next()
		fmt.Printf("connect failed: %v (retrying in %s)\n", err, delay.Round(time.Millisecond))
		time.Sleep(delay)
	}
}

func normalizeType(typ string) string {
	switch strings.ToLower(typ) {
	case "ble", "bluetooth":
		return "bluetooth"
	default:
		return strings.ToLower(typ)
	}
}

func (r *repl) requireDevice() bool {
	if r.deviceID == "" {
		fmt.Println("not connected; use /connect first")
		return false
	}
	return true
}

func (r *repl) nodes() {
	if !r.requireDevice() {
		return
	}
	list := r.mgr.Nodes(r.deviceID)
	if len(list) == 0 {
		fmt.Println("no nodes known yet")
		return
	}
	for _, n := range list {
		status := "offline"
		if n.Online {
			status = "online"
		}
		fmt.Printf("  %s  %-20s %-6s %s\n", n.ID, n.Name, n.ShortName, status)
	}
}

func (r *repl) send(dest, text string) {
	if !r.requireDevice() {
		return
	}
	if err := r.mgr.Send(r.deviceID, text, dest); err != nil {
		fmt.Printf("send failed: %v\n", err)
	}
}

func (r *repl) showHistory(limit int) {
	if !r.requireDevice() {
		return
	}
	msgs, err := r.mgr.History(r.deviceID, limit)
	if err != nil {
		fmt.Printf("history failed: %v\n", err)
		return
	}
	for _, m := range msgs {
		dir := "<-"
		if m.Outgoing {
			dir = "->"
			if m.Acked {
				dir = "=>"
			}
		}
		fmt.Printf("  %s %s %s: %s\n", m.Time.Format("15:04:05"), dir, m.From, m.Text)
	}
}

func (r *repl) showStats() {
	if !r.requireDevice() {
		return
	}
	stats, err := r.mgr.Stats(r.deviceID)
	if err != nil {
		fmt.Printf("stats failed: %v\n", err)
		return
	}
	fmt.Printf("  sent=%d received=%d dropped=%d connected=%s\n",
		stats.MessagesSent, stats.MessagesReceived, stats.FramesDropped,
		stats.ConnectedAt.Format(time.RFC3339))
	if r.gw != nil {
		gs := r.gw.Stats()
		fmt.Printf("  mqtt published=%d dropped=%d\n", gs.Published, gs.Dropped)
	}
}

func (r *repl) setRadio(regionName, presetName string) {
	if !r.requireDevice() {
		return
	}
	region, err := radio.ParseRegion(strings.ToUpper(regionName))
	if err != nil {
		fmt.Println(err)
		return
	}
	cfg, err := radio.DefaultForRegion(region)
	if presetName != "" {
		for _, p := range radio.Presets() {
			if strings.EqualFold(p.String(), presetName) {
				cfg, err = radio.ForPreset(region, p)
				break
			}
		}
	}
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := r.mgr.SetRadioConfig(r.deviceID, cfg); err != nil {
		fmt.Printf("radio config failed: %v\n", err)
		return
	}
	fmt.Printf("applied %s %s (%.3f MHz, SF%d)\n",
		cfg.Region, cfg.Preset, cfg.FrequencyMHz, cfg.SpreadingFactor)
}

// onEvent prints incoming traffic above the prompt. Runs on the
// connection's read loop, so it only formats and writes.
func (r *repl) onEvent(deviceID string, ev wire.Event) {
	var line string
	switch e := ev.(type) {
	case wire.MessageReceived:
		line = fmt.Sprintf("%s: %s", e.From, e.Text)
	case wire.NodeAnnouncement:
		line = fmt.Sprintf("* node %s (%s) joined", e.ID, e.Name)
	case wire.NodeDeparture:
		line = fmt.Sprintf("* node %s left", e.ID)
	case wire.MessageAck:
		line = fmt.Sprintf("* delivery confirmed by %s", e.From)
	default:
		return
	}
	if r.rl != nil {
		fmt.Fprintf(r.rl.Stdout(), "%s\n", line)
	} else {
		fmt.Println(line)
	}
}
