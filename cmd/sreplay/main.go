// Command sreplay records scripted input sessions to disk and plays them
// back: record drives a JavaScript input script through the recorder,
// inspect prints a stored recording's stream layout, verify replays a
// recording twice in parallel and compares the state sequences, and play
// replays one against the wall clock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/dresswithpockets/sreplay/config"
	"github.com/dresswithpockets/sreplay/core/delta"
	"github.com/dresswithpockets/sreplay/core/recording"
	"github.com/dresswithpockets/sreplay/internal/driver"
	"github.com/dresswithpockets/sreplay/internal/engine"
	"github.com/dresswithpockets/sreplay/internal/observability"
	"github.com/dresswithpockets/sreplay/internal/script"
	"github.com/dresswithpockets/sreplay/lib/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("sreplay", flag.ContinueOnError)
	cfgPath := global.String("config", "", "Path to a YAML configuration file")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		return errors.New("command required (record|inspect|verify|play)")
	}

	cfg, err := loadSettings(*cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, cfg.Environment)
		if err != nil {
			return fmt.Errorf("initialise telemetry: %w", err)
		}
		observability.SetMetrics(telemetry.NewMetrics(provider.Meter("sreplay")))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
			}
		}()
	}

	switch rest[0] {
	case "record":
		return cmdRecord(ctx, cfg, rest[1:])
	case "inspect":
		return cmdInspect(rest[1:])
	case "verify":
		return cmdVerify(ctx, cfg, rest[1:])
	case "play":
		return cmdPlay(ctx, cfg, rest[1:])
	default:
		return fmt.Errorf("unknown command %q (expected record, inspect, verify or play)", rest[0])
	}
}

func loadSettings(path string) (config.Settings, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return config.Settings{}, err
	}
	return cfg, nil
}

func cmdRecord(ctx context.Context, cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	scriptPath := fs.String("script", "", "JavaScript input script defining tick(t)")
	outPath := fs.String("out", "", "Output recording file")
	ticks := fs.Int64("ticks", 600, "Number of fixed ticks to record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scriptPath == "" {
		return errors.New("-script flag is required")
	}
	if *outPath == "" {
		return errors.New("-out flag is required")
	}
	if *ticks <= 0 {
		return fmt.Errorf("invalid tick count %d", *ticks)
	}

	src, err := os.ReadFile(*scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	poll, err := script.NewSource(string(src))
	if err != nil {
		return err
	}

	metrics := observability.NewSessionMetrics()
	eng := engine.New(
		engine.WithPollSource(poll),
		engine.WithMetrics(metrics),
		engine.WithPhysicsRate(cfg.Session.PhysicsTicksPerSecond),
	)
	if err := eng.Record(engine.RecordOptions{
		RetentionBound: cfg.Session.RetentionBound,
		SnapshotPeriod: cfg.Session.SnapshotPeriod,
	}); err != nil {
		return err
	}

	loop := driver.New(eng,
		driver.WithTicksPerSecond(cfg.Session.PhysicsTicksPerSecond),
		driver.WithTickFunc(func(tick int64, t float64) error {
			if err := poll.Advance(t); err != nil {
				return err
			}
			for _, ev := range poll.DrainEvents() {
				if err := eng.RecordEvent(ev); err != nil {
					return err
				}
			}
			return nil
		}),
	)
	if err := loop.Run(ctx, *ticks); err != nil {
		return err
	}
	if err := eng.Stop(); err != nil {
		return err
	}
	rec := eng.Recording()
	if err := loop.Run(ctx, 1); err != nil {
		return err
	}

	data, err := recording.Encode(rec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}

	snap := metrics.Snapshot()
	fmt.Printf("recorded %s: %d ticks, %d physics deltas, %d idle deltas, %d snapshots\n",
		rec.ID, rec.MaxTick+1, len(rec.PhysicsDeltas), len(rec.IdleDeltas), snap.SnapshotsTaken)
	return nil
}

func cmdInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	inPath := fs.String("in", "", "Recording file to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("-in flag is required")
	}

	rec, err := readRecording(*inPath)
	if err != nil {
		return err
	}

	events := 0
	for _, te := range rec.IdleEvents {
		events += len(te.Events)
	}
	fmt.Printf("recording %s\n", rec.ID)
	fmt.Printf("  max tick:        %d\n", rec.MaxTick)
	fmt.Printf("  snapshot period: %gs\n", rec.SnapshotPeriod)
	fmt.Printf("  physics deltas:  %d\n", len(rec.PhysicsDeltas))
	fmt.Printf("  idle deltas:     %d\n", len(rec.IdleDeltas))
	fmt.Printf("  idle events:     %d\n", events)
	fmt.Printf("  snapshots:       %d\n", len(rec.Snapshots))
	if names := actionNames(rec); len(names) > 0 {
		fmt.Printf("  actions:         %s\n", strings.Join(names, ", "))
	}
	for i, s := range rec.Snapshots {
		fmt.Printf("  snapshot %d: tick %d, idle %.3fs, delta idx %d\n",
			i, s.PhysicsTick, s.IdleTime, s.PhysicsDeltaIdx)
	}
	return nil
}

func cmdVerify(ctx context.Context, cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	inPath := fs.String("in", "", "Recording file to verify")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("-in flag is required")
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}

	// Each pass decodes its own copy so the replays share nothing.
	traces := make([][]string, 2)
	errs := make([]error, 2)
	var wg conc.WaitGroup
	for i := 0; i < 2; i++ {
		i := i
		wg.Go(func() {
			traces[i], errs[i] = replayTrace(ctx, cfg, data)
		})
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("replay pass %d: %w", i+1, err)
		}
	}

	if len(traces[0]) != len(traces[1]) {
		return fmt.Errorf("verification failed: pass lengths differ (%d vs %d)",
			len(traces[0]), len(traces[1]))
	}
	for tick := range traces[0] {
		if traces[0][tick] != traces[1][tick] {
			return fmt.Errorf("verification failed: state diverges at tick %d:\n  pass 1: %s\n  pass 2: %s",
				tick, traces[0][tick], traces[1][tick])
		}
	}
	fmt.Printf("verified: %d ticks identical across both passes\n", len(traces[0]))
	return nil
}

func cmdPlay(ctx context.Context, cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	inPath := fs.String("in", "", "Recording file to play")
	rateName := fs.String("rate", "full", "Playback rate (paused|quarter|half|full|double)")
	flatOut := fs.Bool("flat-out", false, "Replay without wall clock pacing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("-in flag is required")
	}
	playRate, err := parseRate(*rateName)
	if err != nil {
		return err
	}

	rec, err := readRecording(*inPath)
	if err != nil {
		return err
	}

	eng := engine.New(engine.WithPhysicsRate(cfg.Session.PhysicsTicksPerSecond))
	eng.OnModeChanged(func(from, to engine.Mode) {
		fmt.Printf("mode: %s -> %s\n", from, to)
	})
	if err := eng.Play(rec, nil); err != nil {
		return err
	}
	if err := eng.SetRate(playRate); err != nil {
		return err
	}

	opts := []driver.Option{driver.WithTicksPerSecond(cfg.Session.PhysicsTicksPerSecond)}
	if !*flatOut {
		opts = append(opts, driver.WithRealtime())
	}
	loop := driver.New(eng, opts...)

	// A paused replay never finishes; everything else ends shortly after
	// the final tick even at quarter rate.
	bound := (rec.MaxTick + 2) * 8
	if err := loop.RunUntilOff(ctx, bound); err != nil {
		return err
	}
	fmt.Printf("played %s to tick %d\n", rec.ID, rec.MaxTick)
	return nil
}

// replayTrace replays a decoded copy of data from tick 0 and fingerprints
// the polled state after every fixed tick.
func replayTrace(ctx context.Context, cfg config.Settings, data []byte) ([]string, error) {
	rec, err := recording.Decode(data)
	if err != nil {
		return nil, err
	}
	names := actionNames(rec)

	eng := engine.New(engine.WithPhysicsRate(cfg.Session.PhysicsTicksPerSecond))
	if err := eng.Play(rec, nil); err != nil {
		return nil, err
	}

	var trace []string
	loop := driver.New(eng,
		driver.WithTicksPerSecond(cfg.Session.PhysicsTicksPerSecond),
		driver.WithTickFunc(func(tick int64, _ float64) error {
			if eng.Mode() == engine.ModeReplaying {
				trace = append(trace, fingerprint(eng, names))
			}
			return nil
		}),
	)
	if err := loop.RunUntilOff(ctx, rec.MaxTick+2); err != nil {
		return nil, err
	}
	return trace, nil
}

// fingerprint summarizes the replayed state visible through the poll
// surface as a comparable line.
func fingerprint(eng *engine.Engine, actions []string) string {
	var b strings.Builder
	for _, name := range actions {
		fmt.Fprintf(&b, "%s=%g/%g/%t/%t/%t ", name,
			eng.GetActionStrength(name, false),
			eng.GetActionRawStrength(name, false),
			eng.IsActionPressed(name, false),
			eng.IsActionJustPressed(name, false),
			eng.IsActionJustReleased(name, false),
		)
	}
	fmt.Fprintf(&b, "ptr=%s/%v/%v/%d",
		eng.GetPointerMode(),
		eng.GetPointerVelocity(),
		eng.GetPointerScreenVelocity(),
		eng.GetPointerButtonMask(),
	)
	return b.String()
}

// actionNames collects every action name mentioned by the recording's
// delta streams, sorted.
func actionNames(rec *recording.Recording) []string {
	seen := make(map[string]struct{})
	collect := func(deltas []delta.Delta) {
		for _, d := range deltas {
			for _, value := range d.Changes {
				switch changes := value.(type) {
				case []delta.ActionFloat:
					for _, c := range changes {
						seen[c.Action] = struct{}{}
					}
				case []delta.ActionBool:
					for _, c := range changes {
						seen[c.Action] = struct{}{}
					}
				}
			}
		}
	}
	collect(rec.PhysicsDeltas)
	collect(rec.IdleDeltas)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseRate(s string) (engine.Rate, error) {
	switch s {
	case "paused":
		return engine.RatePaused, nil
	case "quarter":
		return engine.RateQuarter, nil
	case "half":
		return engine.RateHalf, nil
	case "full":
		return engine.RateFull, nil
	case "double":
		return engine.RateDouble, nil
	default:
		return 0, fmt.Errorf("unknown playback rate %q", s)
	}
}

func readRecording(path string) (*recording.Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return recording.Decode(data)
}
