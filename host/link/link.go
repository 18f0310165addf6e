// Package link drives the monitor protocol over a serial connection to a
// board running the firmware. A background reader decodes frames into a
// queue; requests are written from the caller's goroutine and answered
// from that queue.
package link

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gopit/host/serial"
	"gopit/protocol"
)

var (
	// ErrTimeout reports that no matching reply arrived in time.
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrClosed reports a request against a closed link.
	ErrClosed = errors.New("link closed")

	// ErrRemoteCommand mirrors the firmware's command rejection.
	ErrRemoteCommand = errors.New("firmware rejected the command")

	// ErrRemoteChannel mirrors the firmware's channel rejection.
	ErrRemoteChannel = errors.New("firmware rejected the channel index")
)

// Link owns the port and converses in whole frames. One requester at a
// time; the background reader only feeds the frame queue.
type Link struct {
	port   serial.Port
	log    zerolog.Logger
	frames chan *protocol.Frame

	writeMu   sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the device and starts the reader.
func Dial(device string, baud int, log zerolog.Logger) (*Link, error) {
	cfg := serial.DefaultConfig(device)
	if baud > 0 {
		cfg.Baud = baud
	}
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port, log), nil
}

// New wraps an already open port. The link takes ownership and closes the
// port on Close.
func New(port serial.Port, log zerolog.Logger) *Link {
	l := &Link{
		port:   port,
		log:    log,
		frames: make(chan *protocol.Frame, 32),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Link) readLoop() {
	defer close(l.done)

	var dec protocol.Decoder
	buf := make([]byte, 256)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		n, err := l.port.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for f := dec.Next(); f != nil; f = dec.Next() {
				l.log.Debug().Uint8("type", f.Type).Int("len", len(f.Payload)).Msg("frame received")
				select {
				case l.frames <- f:
				default:
					l.log.Warn().Uint8("type", f.Type).Msg("frame queue full, dropping")
				}
			}
		}
		if err != nil {
			// A timed-out read surfaces as EOF on some ports; that is
			// idle, not failure.
			if err == io.EOF {
				continue
			}
			select {
			case <-l.stop:
				// Expected when Close pulled the port out from under us.
			default:
				l.log.Error().Err(err).Msg("serial read failed")
			}
			return
		}
	}
}

// Send transmits one command without waiting for an answer.
func (l *Link) Send(cmd protocol.Command) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	frame := protocol.AppendCommand(nil, cmd)
	if _, err := l.port.Write(frame); err != nil {
		return errors.Wrap(err, "write command")
	}
	return nil
}

// next waits for a frame of the wanted type, turning firmware error frames
// into errors. Other frame types are logged and skipped; boot banners and
// stale replies land there.
func (l *Link) next(wantType uint8, timeout time.Duration) (*protocol.Frame, error) {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-l.frames:
			if f.Type == protocol.MsgError {
				code, err := protocol.DecodeError(f)
				if err != nil {
					return nil, errors.Wrap(err, "decode error frame")
				}
				return nil, remoteError(code)
			}
			if f.Type == wantType {
				return f, nil
			}
			l.log.Debug().Uint8("type", f.Type).Msg("skipping unexpected frame")
		case <-deadline:
			return nil, ErrTimeout
		case <-l.stop:
			return nil, ErrClosed
		}
	}
}

func remoteError(code uint8) error {
	if code == protocol.ErrCodeChannel {
		return ErrRemoteChannel
	}
	return ErrRemoteCommand
}

// Exec sends a mutating command and waits for the confirming status.
func (l *Link) Exec(cmd protocol.Command, timeout time.Duration) (protocol.ChannelStatus, error) {
	if err := l.Send(cmd); err != nil {
		return protocol.ChannelStatus{}, err
	}
	f, err := l.next(protocol.MsgStatus, timeout)
	if err != nil {
		return protocol.ChannelStatus{}, err
	}
	st, err := protocol.DecodeStatus(f)
	if err != nil {
		return protocol.ChannelStatus{}, errors.Wrap(err, "decode status")
	}
	return st, nil
}

// SetValue programs a channel's load value in bus cycles.
func (l *Link) SetValue(ch uint8, cycles uint32, timeout time.Duration) (protocol.ChannelStatus, error) {
	return l.Exec(protocol.Command{Op: protocol.CmdSetValue, Channel: ch, Arg: cycles}, timeout)
}

// SetPeriod programs a channel's period, rounded to whole microseconds.
func (l *Link) SetPeriod(ch uint8, period, timeout time.Duration) (protocol.ChannelStatus, error) {
	var us uint64
	if period > 0 {
		us = uint64(period+500*time.Nanosecond) / uint64(time.Microsecond)
		if us > math.MaxUint32 {
			us = math.MaxUint32
		}
	}
	return l.Exec(protocol.Command{Op: protocol.CmdSetPeriodUS, Channel: ch, Arg: uint32(us)}, timeout)
}

// SetFrequency programs a channel's rate, rounded to whole millihertz.
func (l *Link) SetFrequency(ch uint8, hz float64, timeout time.Duration) (protocol.ChannelStatus, error) {
	millihz := math.Floor(hz*1000 + 0.5)
	if millihz < 0 || math.IsNaN(millihz) {
		millihz = 0
	} else if millihz > math.MaxUint32 {
		millihz = math.MaxUint32
	}
	return l.Exec(protocol.Command{Op: protocol.CmdSetFreqMilliHz, Channel: ch, Arg: uint32(millihz)}, timeout)
}

// Start arms a channel with the firmware's fire counter.
func (l *Link) Start(ch uint8, timeout time.Duration) (protocol.ChannelStatus, error) {
	return l.Exec(protocol.Command{Op: protocol.CmdStart, Channel: ch}, timeout)
}

// Stop halts a channel's countdown.
func (l *Link) Stop(ch uint8, timeout time.Duration) (protocol.ChannelStatus, error) {
	return l.Exec(protocol.Command{Op: protocol.CmdStop, Channel: ch}, timeout)
}

// Reset restarts a running channel's countdown from the load value.
func (l *Link) Reset(ch uint8, timeout time.Duration) (protocol.ChannelStatus, error) {
	return l.Exec(protocol.Command{Op: protocol.CmdReset, Channel: ch}, timeout)
}

// Identify asks the firmware who it is.
func (l *Link) Identify(timeout time.Duration) (protocol.Identity, error) {
	if err := l.Send(protocol.Command{Op: protocol.CmdIdentify}); err != nil {
		return protocol.Identity{}, err
	}
	f, err := l.next(protocol.MsgIdentity, timeout)
	if err != nil {
		return protocol.Identity{}, err
	}
	id, err := protocol.DecodeIdentity(f)
	if err != nil {
		return protocol.Identity{}, errors.Wrap(err, "decode identity")
	}
	return id, nil
}

// Query fetches the status of the given number of channels.
func (l *Link) Query(channels int, timeout time.Duration) ([]protocol.ChannelStatus, error) {
	if err := l.Send(protocol.Command{Op: protocol.CmdQuery}); err != nil {
		return nil, err
	}
	out := make([]protocol.ChannelStatus, 0, channels)
	for len(out) < channels {
		f, err := l.next(protocol.MsgStatus, timeout)
		if err != nil {
			return out, err
		}
		st, err := protocol.DecodeStatus(f)
		if err != nil {
			return out, errors.Wrap(err, "decode status")
		}
		out = append(out, st)
	}
	return out, nil
}

// Trace pulls the firmware's fire ring. The dump has no terminator, so
// frames are collected until the line stays idle for idleGap.
func (l *Link) Trace(timeout, idleGap time.Duration) ([]protocol.TraceEntry, error) {
	if err := l.Send(protocol.Command{Op: protocol.CmdTraceDump}); err != nil {
		return nil, err
	}

	f, err := l.next(protocol.MsgTrace, timeout)
	if err != nil {
		return nil, err
	}
	out, err := protocol.DecodeTrace(f)
	if err != nil {
		return nil, errors.Wrap(err, "decode trace")
	}

	for {
		f, err := l.next(protocol.MsgTrace, idleGap)
		if err == ErrTimeout {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		part, err := protocol.DecodeTrace(f)
		if err != nil {
			return out, errors.Wrap(err, "decode trace")
		}
		out = append(out, part...)
	}
}

// Done is closed when the background reader exits, either through Close
// or because the port failed. Waiting on it spots an unplugged device
// while no request is in flight.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Close stops the reader and closes the port.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		err = l.port.Close()
		<-l.done
	})
	return err
}
