package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lumacube.art/internal/artnet"
	"lumacube.art/internal/patterns"
	"lumacube.art/internal/pixel"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:6454", "display address")
		pattern    = flag.String("pattern", "rainbow", "test pattern: "+strings.Join(patterns.Names(), ", "))
		width      = flag.Int("width", 20, "raster width")
		height     = flag.Int("height", 20, "raster height")
		length     = flag.Int("length", 20, "raster length (z layers)")
		fps        = flag.Int("fps", 30, "frames per second")
		brightness = flag.Float64("brightness", 1.0, "send-time brightness scale, 0..1")
		base       = flag.Uint("base_universe", 0, "first universe of the target cube")
		upl        = flag.Int("universes_per_layer", 0, "universe stride per layer (0: derived from width*height)")
		frames     = flag.Int("frames", 0, "stop after this many frames (0: run until interrupted)")
	)
	flag.Parse()

	p, err := patterns.ByName(*pattern)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *fps <= 0 || *width <= 0 || *height <= 0 || *length <= 0 {
		fmt.Fprintln(os.Stderr, "dimensions and fps must be positive")
		os.Exit(2)
	}

	c, err := artnet.NewController(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer c.Close()

	r := pixel.NewRaster(*width, *height, *length)
	r.Brightness = *brightness

	stride := *upl
	if stride <= 0 {
		stride = (*width**height*3 + 509) / 510
	}
	opts := artnet.SendOptions{UniversesPerLayer: stride}

	ctx, cancel := signalContext()
	defer cancel()

	tick := time.NewTicker(time.Second / time.Duration(*fps))
	defer tick.Stop()

	frame := 0
	for {
		p.Render(r, frame)
		if err := c.SendRaster(uint16(*base), r, opts); err != nil {
			fmt.Fprintln(os.Stderr, "send:", err)
			os.Exit(1)
		}
		frame++
		if *frames > 0 && frame >= *frames {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
