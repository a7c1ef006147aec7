package correlate

// DefaultStaleFrames is how many newer frames may start before an unfinished
// frame is given up as incomplete.
const DefaultStaleFrames = 1000

// Assembler groups packets into frames by timestamp. Each timestamp being
// filled has its own mailbox; a frame is handed to Emit as soon as it is
// full. Packet order within and across frames does not matter, but loss is
// never recovered.
type Assembler struct {
	Channels    int
	StaleFrames int
	Emit        func(*Frame) error

	mailbox   []*Frame
	nextIndex int

	Packets    int // packets offered
	Complete   int // frames emitted
	Incomplete int // frames given up
	Forgotten  int // packets in frames given up
	Ignored    int // packets whose antenna is outside the frame
}

// NewAssembler returns an Assembler for frames of nchan channels.
func NewAssembler(nchan int, emit func(*Frame) error) *Assembler {
	return &Assembler{Channels: nchan, StaleFrames: DefaultStaleFrames, Emit: emit}
}

// Add routes one packet to its mailbox, opening a new one for a new timestamp.
func (a *Assembler) Add(p *Packet) error {
	a.Packets++
	if int(p.Antenna) < 0 || int(p.Antenna) >= a.Channels {
		a.Ignored++
		return nil
	}
	for i, f := range a.mailbox {
		if f.Number != p.Timestamp {
			continue
		}
		full, err := f.Add(p)
		if err != nil {
			return err
		}
		if full {
			a.mailbox = append(a.mailbox[:i], a.mailbox[i+1:]...)
			return a.emit(f)
		}
		return nil
	}

	f := NewFrame(a.Channels, a.nextIndex, p.Timestamp)
	a.nextIndex++
	full, err := f.Add(p)
	if err != nil {
		return err
	}
	if full {
		return a.emit(f)
	}
	a.mailbox = append(a.mailbox, f)
	a.dropStale()
	return nil
}

func (a *Assembler) emit(f *Frame) error {
	a.Complete++
	if a.Emit == nil {
		return nil
	}
	return a.Emit(f)
}

// dropStale gives up every frame more than StaleFrames older than the newest.
func (a *Assembler) dropStale() {
	keep := a.mailbox[:0]
	for _, f := range a.mailbox {
		if a.nextIndex-1-f.Index > a.StaleFrames {
			a.Incomplete++
			a.Forgotten += f.Packets()
			continue
		}
		keep = append(keep, f)
	}
	clear(a.mailbox[len(keep):])
	a.mailbox = keep
}

// Pending returns the number of open mailboxes.
func (a *Assembler) Pending() int {
	return len(a.mailbox)
}

// Finish gives up every frame still open, as at the end of the input.
func (a *Assembler) Finish() {
	for _, f := range a.mailbox {
		a.Incomplete++
		a.Forgotten += f.Packets()
	}
	clear(a.mailbox)
	a.mailbox = a.mailbox[:0]
}
