package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/lingmulongtai/dvd-motor-show/internal/comms/dispatch"
	"github.com/lingmulongtai/dvd-motor-show/internal/comms/serial"
	"github.com/lingmulongtai/dvd-motor-show/internal/config"
	"github.com/lingmulongtai/dvd-motor-show/internal/debug"
	"github.com/lingmulongtai/dvd-motor-show/internal/hw/gpio"
	"github.com/lingmulongtai/dvd-motor-show/internal/hw/stepper"
	"github.com/lingmulongtai/dvd-motor-show/internal/logic/motion"
	"github.com/lingmulongtai/dvd-motor-show/internal/web"
)

func main() {
	// CLI flags. Show behavior lives in the config file, not here.
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start show console on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	// Initialize GPIO driver
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Build the motion profile and stepper
	profile, err := newProfileFromConfig(cfg)
	if err != nil {
		log.Fatalf("init motion profile failed: %v", err)
	}
	debug.PrintStruct("Motion config", cfg.Motion)

	var pins [4]int
	copy(pins[:], cfg.Stepper.Pins)
	motor := stepper.New(gpioDriver, stepper.Config{Pins: pins}, profile)
	debug.PrintStruct("Stepper config", cfg.Stepper)

	// Open the command link
	var port serial.Port
	if cfg.Serial.Device == "" {
		debug.Info("No serial device configured, using in-memory mock port")
		port = serial.NewMock()
	} else {
		port, err = serial.Open(serial.Config{
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.ReadTimeout(),
		})
		if err != nil {
			log.Fatalf("open serial failed: %v", err)
		}
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Printf("closing serial port failed: %v", err)
		}
	}()

	// Optional show console
	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	// Status lines go to the host on the serial link, to the debug
	// log, and to the console when one is running.
	status := func(line string) {
		debug.Live("%s", line)
		if _, err := io.WriteString(port, line+"\r\n"); err != nil {
			debug.Error(err)
		}
		if broadcaster != nil {
			broadcaster.BroadcastMsg(line)
		}
	}

	// One controller with process lifetime, passed explicitly.
	ctrl := motion.NewController(motor, motion.Config{
		Dwell:  cfg.Dwell(),
		Status: status,
	})
	dispatcher := dispatch.New(port, ctrl, status)

	if p := webPort.port(); p > 0 {
		go func() {
			if err := dispatcher.Loop(ctx); err != nil && err != context.Canceled {
				debug.Error(err)
			}
		}()

		srv := web.NewServer(fmt.Sprintf(":%d", p), broadcaster, dispatcher.Trigger, func() web.ShowState {
			s := ctrl.Snapshot()
			return web.ShowState{State: s.State, Position: s.Position, Running: s.Running}
		})
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("show console: %v", err)
		}
		return
	}

	if err := dispatcher.Loop(ctx); err != nil && err != context.Canceled {
		log.Fatalf("control loop: %v", err)
	}
}

// newProfileFromConfig selects a motion profile based on configuration.
func newProfileFromConfig(cfg *config.Config) (stepper.Profile, error) {
	switch cfg.Motion.Profile {
	case config.ProfileTrapezoid:
		return stepper.NewTrapezoid(cfg.Motion.MaxSpeed, cfg.Motion.Acceleration)
	case config.ProfileConstant:
		return stepper.NewConstant(cfg.Motion.MaxSpeed)
	default:
		return nil, fmt.Errorf("unsupported motion profile: %s", cfg.Motion.Profile)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
