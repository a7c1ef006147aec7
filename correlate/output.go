package correlate

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// OutputBase returns dir/correlated/PC_<name>, where name is the input file's
// base name without its extension.
func OutputBase(inputFile string) string {
	dir, name := filepath.Split(inputFile)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(dir, "correlated", "PC_"+name)
}

// writeMatrix writes m to fileName in .npy format.
func writeMatrix(fileName string, m *mat.Dense) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return fmt.Errorf("could not write %s: %w", fileName, err)
	}
	return f.Close()
}

// NPYWriter returns a write function for an Accumulator that stores
// accumulation k as base.k.real.npy and base.k.imag.npy, creating the
// directory of base if needed.
func NPYWriter(base string) func(*Accumulator) error {
	return func(acc *Accumulator) error {
		if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
			return err
		}
		prefix := fmt.Sprintf("%s.%d", base, acc.Written)
		if err := writeMatrix(prefix+".real.npy", acc.Real); err != nil {
			return err
		}
		return writeMatrix(prefix+".imag.npy", acc.Imag)
	}
}

// Summary reports what Process did with a file.
type Summary struct {
	Channels      int
	PacketsRead   int
	Complete      int
	Incomplete    int
	Forgotten     int
	Ignored       int
	Accumulations int
	Discarded     int // frames in a final partial accumulation
}

// EquivalentFrames returns the forgotten packets expressed as whole frames.
func (s Summary) EquivalentFrames() int {
	if s.Channels == 0 {
		return 0
	}
	return int(math.Ceil(float64(s.Forgotten) / float64(s.Channels)))
}

// Print writes the end-of-file report.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "++++++++++++++++++++++++++++++++++++++++")
	fmt.Fprintf(w, "Packets analysed: %d\n", s.PacketsRead)
	fmt.Fprintf(w, "Final completed frames: %d\n", s.Complete)
	if s.Complete > 0 {
		fmt.Fprintf(w, "Packet-to-frame ratio: %.4f\n", float64(s.PacketsRead)/float64(s.Complete))
	} else {
		fmt.Fprintln(w, "No completed frames!")
	}
	fmt.Fprintf(w, "Number of incomplete frames: %d\n", s.Incomplete)
	fmt.Fprintf(w, "Number of forgotten packets: %d\n", s.Forgotten)
	fmt.Fprintf(w, "          Equivalent frames: %d\n", s.EquivalentFrames())
	fmt.Fprintf(w, "Ideal frame total: %d\n", s.Complete+s.EquivalentFrames())
	if s.Ignored > 0 {
		fmt.Fprintf(w, "Packets with out-of-range antenna: %d\n", s.Ignored)
	}
	fmt.Fprintf(w, "Accumulations written: %d\n", s.Accumulations)
	if s.Discarded > 0 {
		fmt.Fprintf(w, "Frames in final partial accumulation (discarded): %d\n", s.Discarded)
	}
}

// Process reads up to maxPackets packets from r (all of them if maxPackets
// <= 0), assembles them into frames, and accumulates nacc frames at a time.
// Each completed accumulation is handed to write.
func Process(r PacketReader, nacc, maxPackets int, write func(*Accumulator) error) (Summary, error) {
	nchan := r.NumberChannels()
	summary := Summary{Channels: nchan}
	if nchan <= 0 {
		return summary, fmt.Errorf("file declares %d channels", nchan)
	}
	if nacc <= 0 {
		return summary, fmt.Errorf("frames per accumulation must be positive, got %d", nacc)
	}
	acc := NewAccumulator(nchan, nacc, write)
	asm := NewAssembler(nchan, acc.Add)

	var p Packet
	for maxPackets <= 0 || asm.Packets < maxPackets {
		if err := r.Next(&p); err != nil {
			if err == io.EOF {
				break
			}
			return summary, err
		}
		if err := asm.Add(&p); err != nil {
			return summary, err
		}
	}
	asm.Finish()

	summary.PacketsRead = asm.Packets
	summary.Complete = asm.Complete
	summary.Incomplete = asm.Incomplete
	summary.Forgotten = asm.Forgotten
	summary.Ignored = asm.Ignored
	summary.Accumulations = acc.Written
	summary.Discarded = acc.Filled
	return summary, nil
}
