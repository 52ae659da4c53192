// Command antbridge receives ANT+ sensor broadcasts, aggregates readings per
// user and republishes changes to MQTT for Home Assistant.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/Velotales/antbridge/internal/ant"
	"github.com/Velotales/antbridge/internal/config"
	"github.com/Velotales/antbridge/internal/monitor"
	"github.com/Velotales/antbridge/internal/mqtt"
	"github.com/Velotales/antbridge/internal/persist"
	"github.com/Velotales/antbridge/internal/status"
	"github.com/Velotales/antbridge/internal/web"
)

func main() {
	sensorPath := flag.String("sensor-config", "sensor_config.yaml", "Sensor map YAML path")
	appPath := flag.String("app-config", "app_config.yaml", "Application config YAML path")
	localPath := flag.String("local-config", "app_config.local.yaml", "Local overrides YAML path")
	manufacturersPath := flag.String("manufacturers", "manufacturers.yaml", "Manufacturer name table YAML path")
	savePath := flag.String("save", "found_devices.json", "Found-devices document path")
	replayPath := flag.String("replay", "", "Frame log to replay instead of a radio")
	tick := flag.Duration("tick", 500*time.Millisecond, "Pipeline tick interval")
	httpAddr := flag.String("http", ":8080", "HTTP status address (empty to disable)")
	brokerHost := flag.String("broker-host", "", "Override the MQTT host from config")
	printDevices := flag.Bool("print-devices", false, "Print the found-devices document and exit")

	flag.Parse()

	if *printDevices {
		if err := dumpDevices(*savePath, os.Stdout); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if err := run(*sensorPath, *appPath, *localPath, *manufacturersPath, *savePath, *replayPath, *httpAddr, *brokerHost, *tick); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(sensorPath, appPath, localPath, manufacturersPath, savePath, replayPath, httpAddr, brokerHost string, tick time.Duration) error {
	sensors, err := config.LoadSensorConfig(sensorPath)
	if err != nil {
		return err
	}
	appCfg, err := config.LoadAppConfig(appPath, localPath)
	if err != nil {
		return err
	}
	if brokerHost != "" {
		appCfg.MQTT.Host = brokerHost
	}
	manufacturers := config.LoadManufacturers(manufacturersPath)

	// The only transport compiled in is replay; a real radio driver plugs in
	// through ant.Transport.
	if replayPath == "" {
		return fmt.Errorf("no radio transport built in: provide a frame log with -replay")
	}
	frames, err := os.Open(replayPath)
	if err != nil {
		return fmt.Errorf("open replay log: %w", err)
	}
	defer frames.Close()
	transport := ant.NewReplayTransport()
	defer transport.Close()

	publisher, err := mqtt.NewRealPublisher(appCfg.MQTT)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	rateLimit := time.Duration(appCfg.Persistence.RateLimitSecs) * time.Second
	saver := persist.NewSaver(persist.NewFileStore(savePath), rateLimit, manufacturers)

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:    tick.Milliseconds(),
		StaleSecs: int64(appCfg.MQTT.StaleSecs),
		Broker:    appCfg.MQTT.Broker(),
		BaseTopic: appCfg.MQTT.BaseTopic,
		HTTPPort:  httpAddr,
		SaveFile:  savePath,
	})

	mon := monitor.New(monitor.Config{
		TickInterval: tick,
		StaleSeconds: appCfg.MQTT.StaleSecs,
	}, sensors, appCfg.MQTT, transport, publisher, saver, tracker, publisher)

	if err := mon.Start(); err != nil {
		return err
	}

	go func() {
		if err := transport.Run(frames); err != nil {
			log.Printf("replay: %v", err)
		} else {
			log.Printf("replay: log exhausted")
		}
	}()

	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	log.Printf("started: tick=%v broker=%s base_topic=%s users=%d", tick, appCfg.MQTT.Broker(), appCfg.MQTT.BaseTopic, len(sensors.SensorMap.Users))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return mon.Run(ticker.C, sigCh)
}

// dumpDevices prints the found-devices document, one line per device sorted
// by key, for quick inspection without a JSON tool.
func dumpDevices(path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var records map[string]map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		rec := records[k]
		desc, _ := rec["description"].(string)
		line := fmt.Sprintf("%s: %s", k, desc)
		if name, ok := rec["manufacturer_name"].(string); ok {
			line += " (" + name + ")"
		}
		if seen, ok := rec["last_seen"].(float64); ok {
			line += " last seen " + time.Unix(int64(seen), 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
