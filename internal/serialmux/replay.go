package serialmux

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"sync"
	"time"
)

// ReplayPort implements SerialPorter by writing recorded lines into a pipe at
// a fixed period. Writes are discarded.
type ReplayPort struct {
	r    *io.PipeReader
	stop chan struct{}
	once sync.Once
}

// NewReplayPort starts replaying the non-empty lines of data, one every
// interval. When loop is set the recording restarts after the last line,
// otherwise the port reports EOF.
func NewReplayPort(data []byte, interval time.Duration, loop bool) *ReplayPort {
	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append(append([]byte(nil), line...), '\n'))
	}
	if err := sc.Err(); err != nil {
		log.Printf("replay: stopped reading recording: %v", err)
	}

	r, w := io.Pipe()
	p := &ReplayPort{r: r, stop: make(chan struct{})}

	go func() {
		defer w.Close()
		if len(lines) == 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			if i == len(lines) {
				if !loop {
					return
				}
				i = 0
			}
			select {
			case <-p.stop:
				return
			case <-ticker.C:
			}
			if _, err := w.Write(lines[i]); err != nil {
				return
			}
		}
	}()

	return p
}

func (p *ReplayPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *ReplayPort) Write(b []byte) (int, error) { return len(b), nil }

// Close stops the replay and unblocks pending reads.
func (p *ReplayPort) Close() error {
	p.once.Do(func() { close(p.stop) })
	return p.r.Close()
}

// NewReplaySerialMux creates a SerialMux replaying a recorded frame log.
func NewReplaySerialMux(data []byte, interval time.Duration, loop bool) *SerialMux[*ReplayPort] {
	return NewSerialMux(NewReplayPort(data, interval, loop))
}
