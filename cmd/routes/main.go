// routes prints the resolved routing table as TSV, including the Art-Net
// net/sub-net/universe split most node configuration UIs ask for.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"

	"lumacube.art/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "display config path (empty: default layout)")
		out        = flag.String("out", "", "output file (empty: stdout)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	topo, err := cfg.BuildTopology()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build topology:", err)
		os.Exit(1)
	}

	f := os.Stdout
	if *out != "" {
		f, err = os.Create(*out)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create:", err)
			os.Exit(1)
		}
		defer f.Close()
	}

	ports := topo.Ports()
	sort.Ints(ports)

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "port\tuniverse\tnet\tsub_net\tsub_universe\tcube\tz\tstart_pixel\tstart_channel")
	for _, port := range ports {
		for _, u := range topo.Universes(port) {
			r, _ := topo.Resolve(port, u)
			// The 15-bit port-address splits into net:7 / sub-net:4 / universe:4.
			net := u >> 8
			subNet := (u >> 4) & 0xf
			subU := u & 0xf
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%s\t%d\t%d\t%d\n",
				port, u, net, subNet, subU, r.Cube.ID, r.Z, r.PixelOffset, r.PixelOffset*3+1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
}
