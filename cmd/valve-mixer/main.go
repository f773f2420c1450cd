// Command valve-mixer drives a bank of solenoid valves from RUN/STOP/PERIOD
// commands received over a serial link, and publishes its activity to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sweeney/valve-mixer/internal/config"
	"github.com/sweeney/valve-mixer/internal/mqtt"
	"github.com/sweeney/valve-mixer/internal/protocol"
	"github.com/sweeney/valve-mixer/internal/status"
	"github.com/sweeney/valve-mixer/internal/timing"
	"github.com/sweeney/valve-mixer/internal/transport"
	"github.com/sweeney/valve-mixer/internal/valve"
	"github.com/sweeney/valve-mixer/internal/web"
)

// publishQueue bounds events waiting for the broker so the loop never blocks on MQTT.
const publishQueue = 64

// flagValues holds the command-line overrides for config file values.
type flagValues struct {
	port      string
	baud      int
	poll      time.Duration
	period    uint64
	broker    string
	heartbeat time.Duration
	httpAddr  string
	logFile   string
}

func main() {
	def := config.Default()

	configPath := flag.String("config", "/etc/valve-mixer/config.yaml", "YAML configuration file (missing file uses defaults)")
	var fv flagValues
	flag.StringVar(&fv.port, "port", def.Serial.Port, "Serial port")
	flag.IntVar(&fv.baud, "baud", def.Serial.Baud, "Serial baud rate")
	flag.DurationVar(&fv.poll, "poll", def.Timing.Poll, "Polling loop interval")
	flag.Uint64Var(&fv.period, "period", uint64(def.Timing.Period), "Initial cycle period in ticks")
	flag.StringVar(&fv.broker, "broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	flag.DurationVar(&fv.heartbeat, "heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	flag.StringVar(&fv.httpAddr, "http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	flag.StringVar(&fv.logFile, "log-file", def.Log.File, "Also log to this file, rotated (empty for stderr only)")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit")
	printTopology := flag.Bool("print-topology", false, "Print the channel topology and exit")

	flag.Parse()

	if *listPorts {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := applyOverrides(cfg, set, fv); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printTopology {
		if err := printTopologyTable(os.Stdout, cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	closer := setupLogging(cfg.Log)
	if closer != nil {
		defer closer.Close()
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides copies explicitly set flags over the loaded config and
// re-validates it.
func applyOverrides(cfg *config.Config, set map[string]bool, fv flagValues) error {
	if set["port"] {
		cfg.Serial.Port = fv.port
	}
	if set["baud"] {
		cfg.Serial.Baud = fv.baud
	}
	if set["poll"] {
		cfg.Timing.Poll = fv.poll
	}
	if set["period"] {
		if fv.period == 0 || fv.period > math.MaxUint32 {
			return fmt.Errorf("--period must be between 1 and %d, got %d", uint32(math.MaxUint32), fv.period)
		}
		cfg.Timing.Period = uint32(fv.period)
	}
	if set["broker"] {
		cfg.MQTT.Broker = fv.broker
	}
	if set["heartbeat"] {
		cfg.MQTT.Heartbeat = fv.heartbeat
	}
	if set["http"] {
		cfg.HTTP.Addr = fv.httpAddr
	}
	if set["log-file"] {
		cfg.Log.File = fv.logFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// setupLogging tees the standard logger into a rotated file when one is
// configured. The returned closer is nil when logging to stderr only.
func setupLogging(lc config.LogConfig) io.Closer {
	if lc.File == "" {
		return nil
	}
	lj := &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}

func printPorts(w io.Writer) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

func printTopologyTable(w io.Writer, cfg *config.Config) error {
	topo, err := cfg.TopologyDescriptor()
	if err != nil {
		return err
	}
	lines, err := cfg.LineMap()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "period=%d scale=%d chip=%s\n", cfg.Timing.Period, topo.Scale, cfg.GPIO.Chip)
	for _, ch := range topo.Channels {
		s := ch.Solenoid
		fmt.Fprintf(w, "%-8s %c  %s 0x%02x  lines", ch.Name, s.ID, s.Group, s.Mask)
		for bit := uint8(0); bit < 8; bit++ {
			if s.Mask&(1<<bit) != 0 {
				fmt.Fprintf(w, " %d", lines[s.Group][bit])
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

func run(cfg *config.Config) error {
	topo, err := cfg.TopologyDescriptor()
	if err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	lines, err := cfg.LineMap()
	if err != nil {
		return fmt.Errorf("gpio lines: %w", err)
	}

	// Initialize valves (all released)
	driver, err := valve.NewGPIODriver(cfg.GPIO.Chip, lines)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer driver.Close()

	// Initialize serial link
	link, err := transport.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud, cfg.TerminatorByte(), cfg.Serial.MaxFrame)
	if err != nil {
		return fmt.Errorf("open serial: %w", err)
	}
	defer link.Close()

	// Initialize MQTT
	var backend mqtt.Publisher = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Buffer)
		if err != nil {
			log.Printf("mqtt: %v, publishing disabled", err)
		} else {
			backend = rp
		}
	}
	publisher := mqtt.NewAsync(backend, publishQueue)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Port:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		PollMs:      cfg.Timing.Poll.Milliseconds(),
		TickUs:      cfg.Timing.Tick.Microseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	sched := timing.NewScheduler(topo, cfg.Timing.Period)
	tracker.Update(sched)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	if err := link.WriteFrame([]byte(protocol.ReadyBanner)); err != nil {
		log.Printf("serial: write ready banner: %v", err)
	}

	log.Printf("started: port=%s baud=%d channels=%d period=%d poll=%v tick=%v broker=%q heartbeat=%v",
		cfg.Serial.Port, cfg.Serial.Baud, len(topo.Channels), cfg.Timing.Period, cfg.Timing.Poll, cfg.Timing.Tick, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	ticker := time.NewTicker(cfg.Timing.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	decoder := protocol.NewDecoder(len(topo.Channels))
	decoder.Terminator = cfg.TerminatorByte()

	return runLoop(link, driver, publisher, publisher, tracker, sched, decoder,
		cfg.Timing.Tick, cfg.MQTT.Heartbeat, time.Now, ticker.C, sigCh)
}

// runLoop is the single polling thread. Per tick it handles at most one
// frame, queues its response before touching the valves, then advances the
// scheduler and asserts the next solenoid if a transition is due.
func runLoop(link transport.Transport, driver valve.Driver, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus,
	tracker *status.Tracker, sched *timing.Scheduler, decoder protocol.Decoder,
	tickUnit, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {

	startTime := now()
	clock := timing.NewClock(startTime, tickUnit)
	hb := status.NewHeartbeat(heartbeat, startTime)
	dispatcher := protocol.NewDispatcher(decoder, sched)

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			if err := driver.Write(nil); err != nil {
				log.Printf("release valves: %v", err)
			}
			sched.ApplyChannels(sched.Channels().Cleared())

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				tracker.Update(sched)
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			changed := false

			if frame, ok := link.ReadFrame(); ok {
				handleFrame(frame, t, link, driver, publisher, tracker, sched, dispatcher)
				changed = true
			}

			if s, ok := sched.Advance(clock.Ticks(t)); ok {
				if err := driver.Write(&s); err != nil {
					log.Printf("valve write error: %v", err)
				}
				if tracker != nil {
					tracker.RecordTransition()
				}
				changed = true
			}

			if tracker != nil {
				if changed {
					tracker.Update(sched)
				}
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			if hb.Due(t) {
				log.Printf("heartbeat: uptime=%v running=%v period=%d", t.Sub(startTime).Truncate(time.Second), sched.Running(), sched.Period())
				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// handleFrame answers one frame and applies it. The response is queued
// before any valve change so an acknowledgement never trails a stale output.
func handleFrame(frame transport.Frame, t time.Time, link transport.Transport, driver valve.Driver,
	publisher mqtt.Publisher, tracker *status.Tracker, sched *timing.Scheduler, dispatcher *protocol.Dispatcher) {

	var res protocol.Result
	kind := "OVERFLOW"
	if frame.Err != nil {
		res = protocol.Result{Err: frame.Err}
		if tracker != nil {
			tracker.RecordOverflow()
		}
	} else {
		res = dispatcher.Handle(frame.Data)
		kind = res.Command.Kind.String()
	}

	if err := link.WriteFrame(res.Response()); err != nil {
		log.Printf("serial write error: %v", err)
	}

	errText := ""
	switch {
	case !res.OK:
		errText = res.Err.Error()
		log.Printf("command error: %q: %v", frame.Data, res.Err)
	case res.Stopped():
		log.Printf("command: %q: stopped", frame.Data)
	default:
		log.Printf("command: %q: ok (period=%d running=%v)", frame.Data, sched.Period(), sched.Running())
	}

	if res.Stopped() {
		if err := driver.Write(nil); err != nil {
			log.Printf("valve release error: %v", err)
		}
	}

	if tracker != nil {
		tracker.RecordCommand(status.CommandRecord{
			At:    t,
			Frame: string(frame.Data),
			Kind:  kind,
			OK:    res.OK,
			Error: errText,
		})
	}

	event := mqtt.CommandEvent{
		Timestamp: t,
		Command:   kind,
		Frame:     string(frame.Data),
		OK:        res.OK,
		Error:     errText,
		Period:    sched.Period(),
		Running:   sched.Running(),
		Volumes:   sched.Channels().Volumes(),
	}
	if err := publisher.Publish(event); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
