// showtrigger is the host-side collaborator: it opens the serial link
// described by the shared config file, sends the single M command byte
// and echoes the controller's status lines until the sequence reports
// completion. The device is taken from config only; there is no port
// scanning.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lingmulongtai/dvd-motor-show/internal/comms/dispatch"
	"github.com/lingmulongtai/dvd-motor-show/internal/comms/serial"
	"github.com/lingmulongtai/dvd-motor-show/internal/config"
)

func main() {
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	device := flag.String("device", "", "serial device override (defaults to serial.device from config)")
	wait := flag.Duration("wait", 30*time.Second, "how long to wait for the sequence to complete; 0 = fire and forget")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	dev := cfg.Serial.Device
	if *device != "" {
		dev = *device
	}
	if dev == "" {
		log.Fatal("no serial device: set serial.device in config or pass -device")
	}

	port, err := serial.Open(serial.Config{
		Device:      dev,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.ReadTimeout(),
	})
	if err != nil {
		log.Fatalf("open serial failed: %v", err)
	}
	defer port.Close()

	// Give the board's bootloader time to finish resetting after the
	// port opens, or the command byte is lost.
	time.Sleep(2 * time.Second)

	if _, err := port.Write([]byte{dispatch.CommandRun}); err != nil {
		log.Fatalf("send command failed: %v", err)
	}
	fmt.Println("Motor command sent.")

	if *wait <= 0 {
		return
	}

	deadline := time.Now().Add(*wait)
	var pending strings.Builder
	buf := make([]byte, 64)
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			log.Fatalf("read failed: %v", err)
		}
		if n == 0 {
			continue // read timeout, keep waiting
		}
		pending.Write(buf[:n])

		text := pending.String()
		for {
			i := strings.IndexByte(text, '\n')
			if i < 0 {
				break
			}
			line := strings.TrimRight(text[:i], "\r")
			text = text[i+1:]
			fmt.Println(line)
			if line == "Sequence complete." {
				return
			}
		}
		pending.Reset()
		pending.WriteString(text)
	}

	fmt.Fprintln(os.Stderr, "timed out waiting for sequence completion")
	os.Exit(1)
}
