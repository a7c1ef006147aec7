// Command suitdump prints the headers of frames arriving on a UDP port, or
// summarizes a session file written by suitcapture.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/suitcase/suitcap"
	"github.com/suitcase/suitcap/rawbin"
	"github.com/suitcase/suitcap/tablefile"
)

func probe(w io.Writer, npack int, endpoint string) error {
	fmt.Fprintf(w, "Probing %s for the first %d packets received...\n", endpoint, npack)
	address, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", address)
	if err != nil {
		return err
	}
	defer conn.Close()

	buf := make([]byte, suitcap.MaxPacketSize)
	for range npack {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		describeDatagram(w, buf[:n])
	}
	return nil
}

func describeDatagram(w io.Writer, raw []byte) {
	hdr := suitcap.ParseHeader(raw)
	switch {
	case len(raw) == 0 || hdr.FrameType != suitcap.TimestreamFrameType:
		fmt.Fprintf(w, "%5d bytes, not a timestream frame (type 0x%X)\n", len(raw), hdr.FrameType)
	case len(raw) < suitcap.FrameLength:
		fmt.Fprintf(w, "%5d bytes, SHORT: %v\n", len(raw), hdr)
	default:
		fmt.Fprintf(w, "%5d bytes: %v\n", len(raw), hdr)
	}
}

// dumpFile prints the header of a session file and one line per record, up to nrec.
func dumpFile(w io.Writer, fileName string, nrec int) error {
	switch filepath.Ext(fileName) {
	case ".bin":
		r, err := rawbin.OpenReader(fileName)
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Fprintf(w, "%s: raw binary session\n", fileName)
		fmt.Fprintf(w, "Total records: %d\nChannels: %d\nStart time: %s\n", r.TotalRecords, r.Channels, r.StartTime)
		fmt.Fprintf(w, "Records present: %d", r.RecordsPresent)
		if r.Truncated() {
			fmt.Fprintf(w, " (TRUNCATED; %d trailing bytes)", r.TrailingBytes)
		}
		fmt.Fprintln(w)
		var rec rawbin.Record
		for i := 0; i < nrec; i++ {
			if err := r.NextRecord(&rec); err != nil {
				if err == io.EOF || err == rawbin.ErrTruncated {
					return nil
				}
				return err
			}
			fmt.Fprintf(w, "%6d: antenna %2d timestamp 0x%08X samples %v...\n", i, rec.Antenna, rec.Timestamp, rec.Samples[:8])
		}
		return nil

	case ".tbl":
		r, err := tablefile.OpenReader(fileName)
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Fprintf(w, "%s: table %s\n", fileName, r.Table)
		fmt.Fprint(w, r.Attributes())
		var rec tablefile.Record
		for i := 0; i < nrec; i++ {
			if err := r.NextRecord(&rec); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			fmt.Fprintf(w, "%6d: antenna %2d timestamp 0x%08X at %s samples %v...\n", i, rec.Antenna, rec.Timestamp,
				rec.CompTimestamp, rec.Timestream[:8])
		}
		return nil
	}
	return fmt.Errorf("file '%s' is neither a .bin nor a .tbl session file", fileName)
}

// endpointFromArg splits an optional host[:port] argument.
func endpointFromArg(arg, defaultHost string, port, defaultPort int) (string, error) {
	host := defaultHost
	if arg != "" {
		host = arg
		// If host ends in :portnum, split that off and update the port value
		if pieces := strings.Split(host, ":"); len(pieces) > 1 {
			if len(pieces) > 2 {
				return "", fmt.Errorf("cannot parse host '%s' with %d colon separators", host, len(pieces)-1)
			}
			attachedport, err := strconv.Atoi(pieces[1])
			if err != nil {
				return "", fmt.Errorf("cannot convert port '%s' to integer", pieces[1])
			}
			if port != defaultPort && port != attachedport {
				return "", fmt.Errorf("cannot use -p argument and a conflicting host:port pair")
			}
			if len(pieces[0]) == 0 {
				host = defaultHost
			} else {
				host = pieces[0]
			}
			port = attachedport
		}
	}
	return fmt.Sprintf("%s:%d", host, port), nil
}

func main() {
	var npack int
	var port int
	var fileName string
	const defaultHost = "localhost"
	const defaultPort = 4000
	flag.IntVar(&npack, "n", 10, "Number of packets (or records) to dump")
	flag.IntVar(&port, "port", defaultPort, "Port to monitor")
	flag.IntVar(&port, "p", defaultPort, "Port to monitor (shorthand)")
	flag.StringVar(&fileName, "f", "", "Session file to summarize instead of monitoring a port")

	flag.Usage = func() {
		fmt.Printf("suitdump, for dumping the first N frame headers, by default those from localhost:%d\n",
			defaultPort)
		fmt.Println("Usage: suitdump [flags] [host][:port]")
		fmt.Println("   or: suitdump -f sessionfile [-n N]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if fileName != "" {
		if err := dumpFile(os.Stdout, fileName, npack); err != nil {
			fmt.Printf("error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	endpoint, err := endpointFromArg(flag.Arg(0), defaultHost, port, defaultPort)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := probe(os.Stdout, npack, endpoint); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}
