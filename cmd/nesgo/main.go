// Package main implements the nesgo NES emulator executable.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nesgo/core/internal/bus"
	"github.com/nesgo/core/internal/config"
	"github.com/nesgo/core/internal/cpu"
	"github.com/nesgo/core/internal/graphics"
	"github.com/nesgo/core/internal/shell"
	"github.com/nesgo/core/internal/trace"
	"github.com/nesgo/core/internal/version"
)

func main() {
	var (
		romFile     = flag.String("rom", "", "Path to NES ROM file")
		region      = flag.String("region", "ntsc", "TV region: ntsc or pal")
		illegalMode = flag.String("illegal", "lenient", "KIL/JAM behavior: lenient or strict")
		tracePath   = flag.String("trace", "", "Write structured trace records to this file")
		nogui       = flag.Bool("nogui", false, "Run without a window (headless mode)")
		help        = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVersion {
		version.PrintBuildInfo()
		os.Exit(0)
	}
	if *romFile == "" {
		log.Fatal("a ROM file is required: -rom <path>")
	}

	setupGracefulShutdown()

	cfg := config.New(
		config.WithRegion(parseRegion(*region)),
		config.WithIllegalMode(parseIllegalMode(*illegalMode)),
	)

	backendType := graphics.BackendEbitengine
	if *nogui {
		backendType = graphics.BackendHeadless
	}

	sh, err := shell.New(cfg, backendType)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer func() {
		if err := sh.Cleanup(); err != nil {
			log.Printf("cleanup error: %v", err)
		}
	}()

	if *tracePath != "" {
		f, err := os.Create(*tracePath)
		if err != nil {
			log.Fatalf("failed to open trace file: %v", err)
		}
		defer f.Close()
		sh.SetTraceSink(trace.NewWriterSink(f))
	}

	fmt.Printf("loading %s\n", *romFile)
	if err := sh.LoadROM(*romFile); err != nil {
		log.Fatalf("failed to load ROM: %v", err)
	}

	if err := sh.Run(); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

func parseRegion(s string) bus.Region {
	if s == "pal" {
		return bus.PAL
	}
	return bus.NTSC
}

func parseIllegalMode(s string) cpu.IllegalMode {
	if s == "strict" {
		return cpu.IllegalStrict
	}
	return cpu.IllegalLenient
}

func setupGracefulShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\ninterrupt received, shutting down")
		os.Exit(0)
	}()
}

func printUsage() {
	fmt.Println("nesgo - a Go NES emulator core")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  nesgo -rom <file> [options]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("CONTROLS (Player 1):")
	fmt.Println("  Arrow Keys  - D-Pad")
	fmt.Println("  J           - A Button")
	fmt.Println("  K           - B Button")
	fmt.Println("  Enter       - Start")
	fmt.Println("  Space       - Select")
	fmt.Println("  Escape (2x) - Quit (double-tap within 3 seconds)")
	fmt.Println()
	fmt.Println("Battery-backed cartridges persist to a .sav file next to the ROM.")
}
