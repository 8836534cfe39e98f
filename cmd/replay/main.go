package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"lumacube.art/internal/artnet"
	"lumacube.art/internal/persistence/framelog"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "data directory holding the frame log")
		addr    = flag.String("addr", "127.0.0.1:6454", "display address to replay to")
		port    = flag.Int("port", -1, "replay only frames recorded on this routing port (-1: all)")
		speed   = flag.Float64("speed", 1.0, "time scale: 2 replays at double speed")
		maxGap  = flag.Duration("max_gap", 2*time.Second, "cap on inter-frame sleep (skips dead air)")
		loop    = flag.Bool("loop", false, "restart from the beginning when the log ends")
	)
	flag.Parse()

	if *speed <= 0 {
		fmt.Fprintln(os.Stderr, "-speed must be positive")
		os.Exit(2)
	}

	c, err := artnet.NewController(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer c.Close()

	for {
		sent, err := replayOnce(c, *dataDir, *port, *speed, *maxGap)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		fmt.Printf("replayed %d frames\n", sent)
		if !*loop {
			return
		}
	}
}

func replayOnce(c *artnet.Controller, dataDir string, port int, speed float64, maxGap time.Duration) (uint64, error) {
	var sent uint64
	var prev time.Time

	err := framelog.Walk(dataDir, func(e framelog.Entry) error {
		if port >= 0 && e.Port != port {
			return nil
		}
		if !prev.IsZero() {
			gap := time.Duration(float64(e.TS.Sub(prev)) / speed)
			if gap > maxGap {
				gap = maxGap
			}
			if gap > 0 {
				time.Sleep(gap)
			}
		}
		prev = e.TS
		if err := c.SendDmxPacket(e.Universe, e.Data); err != nil {
			return err
		}
		sent++
		return nil
	})
	return sent, err
}
