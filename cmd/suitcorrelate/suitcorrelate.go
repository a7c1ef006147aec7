// Command suitcorrelate assembles the records of a session file into frames
// and writes accumulated cross-correlation products as .npy matrices.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/suitcase/suitcap/correlate"
)

func main() {
	var input string
	var nacc, npackets int
	flag.StringVar(&input, "i", "", "Input session file (.bin or .tbl)")
	flag.IntVar(&nacc, "n", 100, "Number of frames per accumulation")
	flag.IntVar(&npackets, "p", 0, "Number of packets to analyse (0 means all)")
	flag.Usage = func() {
		fmt.Println("suitcorrelate, for correlating a captured session file")
		fmt.Println("Usage: suitcorrelate -i file [-n nacc] [-p packets]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if input == "" {
		flag.Usage()
		os.Exit(2)
	}

	r, err := correlate.OpenPackets(input)
	if err != nil {
		fmt.Printf("Error opening input file: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	base := correlate.OutputBase(input)
	fmt.Printf("%s: %d channels, %d packets declared\n", input, r.NumberChannels(), r.NumberPackets())
	fmt.Printf("Correlation products: %d\n", correlate.NumProducts(r.NumberChannels()))
	fmt.Printf("Frames per accumulation: %d\n", nacc)
	fmt.Printf("Writing accumulations to %s.<k>.{real,imag}.npy\n", base)

	summary, err := correlate.Process(r, nacc, npackets, correlate.NPYWriter(base))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	summary.Print(os.Stdout)
}
