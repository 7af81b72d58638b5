// Command tire runs the indoor turn-by-turn navigation engine against
// either a simulated or a real Raspberry Pi hardware backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tire/control"
	"tire/hardware"
	"tire/hardware/prod"
	"tire/hardware/sim"
	"tire/localize"
	"tire/navgraph"
	"tire/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	useSim := flag.Bool("sim", true, "use the simulated hardware backend")
	useProd := flag.Bool("prod", false, "use the Raspberry Pi hardware backend (overrides -sim)")
	mapPath := flag.String("map", "data/maps/campus_map.json", "path to the navigation graph JSON file")
	radioMapPath := flag.String("radiomap", "", "path to the BLE radio map JSON file (defaults to the built-in placeholder if unset)")
	fingerprintK := flag.Int("ble-k", 3, "number of nearest fingerprints to average")
	gyroSign := flag.Float64("gyro-sign", 1.0, "sign multiplier applied to the gyroscope Z axis")
	telemetryOn := flag.Bool("telemetry", false, "enable the websocket telemetry sidecar")
	telemetryAddr := flag.String("telemetry-addr", ":8090", "address for the telemetry HTTP/websocket server")
	flag.Parse()

	fmt.Println("=============================================")
	fmt.Println("   TIRE: Turn-by-turn Indoor Routing Engine  ")
	fmt.Println("=============================================")

	graph, err := navgraph.Load(*mapPath)
	if err != nil {
		fmt.Printf("[main] failed to load map: %v\n", err)
		return 1
	}

	localizer := localize.New(*fingerprintK)
	if *radioMapPath != "" {
		if err := localizer.LoadMap(*radioMapPath); err != nil {
			fmt.Printf("[main] failed to load radio map: %v\n", err)
			return 1
		}
	} else {
		fmt.Println("[main] no -radiomap given, using built-in placeholder map")
		localizer.UsePlaceholderMap()
	}

	port, err := selectBackend(*useProd, *useSim)
	if err != nil {
		fmt.Printf("[main] hardware selection failed: %v\n", err)
		return 1
	}
	if err := port.Initialize(); err != nil {
		fmt.Printf("[main] hardware initialization failed: %v\n", err)
		return 1
	}

	loop := control.New(port, graph, localizer, *gyroSign)

	if *telemetryOn {
		hub := telemetry.NewHub()
		go hub.Run()
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hub.ServeWS)
		go func() {
			fmt.Printf("[main] telemetry server listening on %s\n", *telemetryAddr)
			if err := http.ListenAndServe(*telemetryAddr, mux); err != nil {
				fmt.Printf("[main] telemetry server error: %v\n", err)
			}
		}()
		loop.SetTelemetrySink(hub.Publish)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	loop.Run(ctx)
	return 0
}

func selectBackend(useProd, useSim bool) (hardware.Port, error) {
	if useProd {
		fmt.Println("[main] mode: RASPBERRY PI HARDWARE")
		return prod.New(), nil
	}
	if useSim {
		fmt.Println("[main] mode: SIMULATION")
		return sim.New(), nil
	}
	return nil, fmt.Errorf("neither -sim nor -prod selected")
}
