// Command phase-dimmer drives an AC load through phase-angle control: it
// watches a zero-cross sense input, fires the gate a level-dependent delay
// into each half-cycle, and publishes telemetry to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sweeney/phase-dimmer/internal/config"
	"github.com/sweeney/phase-dimmer/internal/control"
	"github.com/sweeney/phase-dimmer/internal/engine"
	"github.com/sweeney/phase-dimmer/internal/gpio"
	"github.com/sweeney/phase-dimmer/internal/mqtt"
	"github.com/sweeney/phase-dimmer/internal/status"
	"github.com/sweeney/phase-dimmer/internal/web"
)

// overrideDeadband is how far (in raw ADC counts) the local control has to
// move from where it sat when a remote override arrived before the override
// is dropped and the knob wins again.
const overrideDeadband = 8

func main() {
	configPath := flag.String("config", "/etc/phase-dimmer.yaml", "YAML configuration file")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	poll := flag.Duration("poll", 0, "control input polling interval (overrides config)")
	heartbeat := flag.Duration("heartbeat", -1, "heartbeat interval, 0 disables (overrides config)")
	calTimeout := flag.Duration("calibration-timeout", -1, "bound the calibration wait, 0 waits forever (overrides config)")
	rawLevel := flag.Int("raw-level", -1, "fixed raw control value instead of the ADC (testing)")
	printState := flag.Bool("print-state", false, "Print sense input and control reading, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *broker != "" {
		cfg.Broker = *broker
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
		if *httpAddr == "off" {
			cfg.HTTPAddr = ""
		}
	}
	if *poll > 0 {
		cfg.Poll = *poll
	}
	if *heartbeat >= 0 {
		cfg.Heartbeat = *heartbeat
	}
	if *calTimeout >= 0 {
		cfg.CalibrationTimeout = *calTimeout
	}

	if err := run(cfg, *rawLevel, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, rawLevel int, printState bool) error {
	params, err := cfg.EngineParams()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	lines, err := gpio.NewRealLines(cfg.Pins.Sense, cfg.Pins.Gate, cfg.Pins.Diag)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	// Close drives the gate low and releases the lines; it must run on every
	// exit path so the load is never left firing.
	defer lines.Close()

	var source control.Source
	if rawLevel >= 0 {
		source = fixedSource(rawLevel)
	} else {
		source, err = control.NewIIOSource(cfg.ADC.Device, cfg.ADC.Channel)
		if err != nil {
			return fmt.Errorf("init control input: %w", err)
		}
	}
	defer source.Close()

	// Print state mode
	if printState {
		sense, err := lines.ReadSense()
		if err != nil {
			return fmt.Errorf("read sense: %w", err)
		}
		raw, err := source.Read()
		if err != nil {
			return fmt.Errorf("read control: %w", err)
		}
		fmt.Printf("sense: %v, control: %d\n", sense, raw)
		return nil
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(cfg.Broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMicros:  params.TickMicros,
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	})

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
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: tick=%dµs poll=%v broker=%s heartbeat=%v", params.TickMicros, cfg.Poll, cfg.Broker, cfg.Heartbeat)

	tickPeriod := time.Duration(params.TickMicros) * time.Microsecond
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	// Boot calibration blocks everything else: the load stays off until the
	// delay bounds exist.
	log.Printf("calibrating: waiting for %d plausible half-cycles", params.CalibrationSamples)
	calibrator := engine.NewCalibrator(params)
	cal, fellBack, err := calibrate(lines, calibrator, params, ticker.C, cfg.CalibrationTimeout)
	if err != nil {
		return err
	}
	if fellBack {
		log.Printf("calibration timed out after %v, using nominal bounds: min=%d max=%d",
			cfg.CalibrationTimeout, cal.MinDelay, cal.MaxDelay)
	} else {
		log.Printf("calibrated: min=%d max=%d avg_half_cycle=%d ticks", cal.MinDelay, cal.MaxDelay, cal.AvgHalfCycle)
	}
	tracker.SetCalibration(status.Calibration{
		MinDelay:     cal.MinDelay,
		MaxDelay:     cal.MaxDelay,
		AvgHalfCycle: cal.AvgHalfCycle,
		Fallback:     fellBack,
	})
	calEvent := mqtt.Event{
		Timestamp:    time.Now(),
		Type:         mqtt.EventCalibrated,
		Level:        params.OffLevel,
		MinDelay:     cal.MinDelay,
		MaxDelay:     cal.MaxDelay,
		AvgHalfCycle: cal.AvgHalfCycle,
	}
	if err := publisher.Publish(calEvent); err != nil {
		log.Printf("failed to publish calibration event: %v", err)
	}

	ctrl := engine.NewController(params)
	// Calibration finishes on a high tick; seed the edge detector so the
	// tail of that pulse is not taken for a fresh edge.
	ctrl.PrimeSense(calibrator.LastSense())
	counts := &tickCounts{}

	// The tick loop owns the hardware lines from here on.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		runTicks(lines, ctrl, counts, ticker.C, stop)
	}()

	ov := &override{}
	if err := publisher.SubscribeLevelSet(ov.set); err != nil {
		log.Printf("mqtt: level command subscription failed: %v", err)
	}

	pollTicker := time.NewTicker(cfg.Poll)
	defer pollTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runControl(ctrl, source, publisher, publisher, tracker, ov, counts,
		cal, params, cfg.Heartbeat, time.Now, pollTicker.C, sigCh)

	close(stop)
	<-done
	return err
}

// calibrate feeds the sense line into the calibrator at the tick rate until
// it completes or the timeout elapses. A zero timeout waits forever; on
// timeout the nominal-derived bounds are returned with fellBack=true.
func calibrate(lines gpio.Lines, cal *engine.Calibrator, params engine.Params, tick <-chan time.Time, timeout time.Duration) (res engine.Result, fellBack bool, err error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		deadline = tm.C
	}

	var readErrs uint64
	for {
		select {
		case <-deadline:
			log.Printf("calibration: %d/%d samples collected before timeout", cal.Accepted(), params.CalibrationSamples)
			return params.FallbackResult(), true, nil

		case <-tick:
			sense, rerr := lines.ReadSense()
			if rerr != nil {
				// A failed sample is indistinguishable from "no edge".
				sense = false
				readErrs++
				if readErrs == 1 {
					log.Printf("calibration: sense read error: %v", rerr)
				}
			}
			if r, done := cal.Tick(sense); done {
				return r, false, nil
			}
		}
	}
}

// runTicks is the hot loop standing in for the tick interrupt. Work per tick
// is strictly bounded: one sense read, one engine step, and output writes
// only when a level actually changes. It returns when stop is closed, gate
// forced low.
func runTicks(lines gpio.Lines, ctrl *engine.Controller, counts *tickCounts, tick <-chan time.Time, stop <-chan struct{}) {
	var lastGate, lastDiag bool
	for {
		select {
		case <-stop:
			if err := lines.SetGate(false); err != nil {
				log.Printf("gpio: lowering gate on stop: %v", err)
			}
			return

		case <-tick:
			sense, err := lines.ReadSense()
			if err != nil {
				// Treat the tick as edge-free and keep the machine running;
				// a persistent fault lands on the safety timeout.
				sense = false
				counts.noteIOError(err, "sense read")
			}

			out := ctrl.Tick(sense)
			counts.record(out.Event)

			if out.Gate != lastGate {
				lastGate = out.Gate
				if err := lines.SetGate(out.Gate); err != nil {
					counts.noteIOError(err, "gate write")
				}
			}
			if out.Diag != lastDiag {
				lastDiag = out.Diag
				if err := lines.SetDiag(out.Diag); err != nil {
					counts.noteIOError(err, "diag write")
				}
			}
		}
	}
}

// runControl is the background loop: it polls the dimming input, maps it to
// a phase delay, hands the result to the engine, and reports over MQTT. It
// returns after a shutdown signal.
func runControl(ctrl *engine.Controller, source control.Source, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, ov *override, counts *tickCounts, cal engine.Result, params engine.Params, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()
	lastLevel := params.OffLevel + 1 // impossible value, forces the first report
	lastCounts := counts.snapshot()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
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
			raw, err := source.Read()
			if err != nil {
				log.Printf("control read error: %v", err)
				continue
			}
			raw, active := ov.resolve(raw)

			level := engine.MapLevel(raw, cal, params)
			ctrl.SetLevel(level)
			percent := engine.LevelPercent(level, cal, params)

			if level != lastLevel {
				lastLevel = level
				log.Printf("level: raw=%d delay=%d ticks (%.1f%%) override=%v", raw, level, percent, active)
				levelEvent := mqtt.Event{
					Timestamp: t,
					Type:      mqtt.EventLevel,
					Level:     level,
					Percent:   percent,
				}
				if err := publisher.Publish(levelEvent); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			}

			// Engine faults surface here as count deltas; the poll rate
			// bounds how often they can be reported.
			cs := counts.snapshot()
			if cs.SafetyTimeouts > lastCounts.SafetyTimeouts && level <= params.SafetyTimeoutTicks {
				// At the off level a timed-out half-cycle is just the output
				// staying off; only a reachable level makes it a fault.
				log.Printf("safety timeout: half-cycle ended without trigger (%d total)", cs.SafetyTimeouts)
				publishFault(publisher, mqtt.EventSafetyTimeout, t, level, percent)
			}
			if cs.Recoveries > lastCounts.Recoveries {
				log.Printf("engine recovered from unknown state (%d total)", cs.Recoveries)
				publishFault(publisher, mqtt.EventRecovered, t, level, percent)
			}
			lastCounts = cs

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					if mqttStatus != nil {
						tracker.SetMQTTConnected(mqttStatus.IsConnected())
					}
					tracker.Update(level, percent, ctrl.ObservedState().String(), active, cs)
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			// Update status tracker for HTTP consumers
			if tracker != nil {
				tracker.Update(level, percent, ctrl.ObservedState().String(), active, cs)
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}
		}
	}
}

func publishFault(publisher mqtt.Publisher, typ mqtt.EventType, t time.Time, level uint32, percent float64) {
	event := mqtt.Event{
		Timestamp: t,
		Type:      typ,
		Level:     level,
		Percent:   percent,
	}
	if err := publisher.Publish(event); err != nil {
		log.Printf("publish error: %v", err)
	}
}

// tickCounts aggregates engine events across the tick/background boundary.
// The tick loop increments, the background loop reads; plain atomics keep
// the hot path free of locks.
type tickCounts struct {
	edgesAccepted  atomic.Uint64
	edgesRejected  atomic.Uint64
	triggers       atomic.Uint64
	safetyTimeouts atomic.Uint64
	recoveries     atomic.Uint64
	ioErrors       atomic.Uint64
}

func (c *tickCounts) record(ev engine.Event) {
	switch ev {
	case engine.EventEdgeAccepted:
		c.edgesAccepted.Add(1)
	case engine.EventEdgeRejected:
		c.edgesRejected.Add(1)
	case engine.EventTriggered:
		c.triggers.Add(1)
	case engine.EventSafetyTimeout:
		c.safetyTimeouts.Add(1)
	case engine.EventRecovered:
		c.recoveries.Add(1)
	}
}

// noteIOError counts a hardware error and logs it at a rate the tick loop
// can afford: the first occurrence, then every 10000th.
func (c *tickCounts) noteIOError(err error, what string) {
	if n := c.ioErrors.Add(1); n == 1 || n%10000 == 0 {
		log.Printf("gpio: %s error (%d so far): %v", what, n, err)
	}
}

func (c *tickCounts) snapshot() status.Counts {
	return status.Counts{
		EdgesAccepted:  c.edgesAccepted.Load(),
		EdgesRejected:  c.edgesRejected.Load(),
		Triggers:       c.triggers.Load(),
		SafetyTimeouts: c.safetyTimeouts.Load(),
		Recoveries:     c.recoveries.Load(),
	}
}

// override holds a remote level command until the local control moves.
type override struct {
	mu     sync.Mutex
	active bool
	raw    int
	// frozen is the analog reading at the moment the override took effect.
	frozen int
	// lastAnalog is the most recent polled reading; haveAnalog is false
	// until the first poll after boot.
	lastAnalog int
	haveAnalog bool
}

// set installs a remote command. Called from the MQTT handler goroutine.
func (o *override) set(raw int) {
	o.mu.Lock()
	o.active = true
	o.raw = raw
	o.frozen = o.lastAnalog
	o.mu.Unlock()
	log.Printf("remote level command: raw=%d", raw)
}

// resolve picks between the analog reading and a pending override. Moving
// the local control past the deadband cancels the override.
func (o *override) resolve(analog int) (raw int, active bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active && !o.haveAnalog {
		// Command arrived before the first poll: this reading is the
		// knob's resting position, not movement.
		o.frozen = analog
	}
	o.lastAnalog = analog
	o.haveAnalog = true

	if o.active {
		delta := analog - o.frozen
		if delta < 0 {
			delta = -delta
		}
		if delta > overrideDeadband {
			o.active = false
			log.Printf("remote override released by local control (raw=%d)", analog)
		}
	}
	if o.active {
		return o.raw, true
	}
	return analog, false
}

// fixedSource replaces the ADC when -raw-level is given.
type fixedSource int

func (s fixedSource) Read() (int, error) { return int(s), nil }
func (s fixedSource) Close() error       { return nil }
