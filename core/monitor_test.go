package core

import (
	"testing"

	"gopit/protocol"
)

func TestApplyMutatingCommands(t *testing.T) {
	newMock(t)

	if err := Apply(protocol.Command{Op: protocol.CmdSetValue, Channel: 1, Arg: 59999}); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if got := Timer1.Value(); got != 59999 {
		t.Errorf("value after SetValue command = %d, want 59999", got)
	}

	// 250000 us at 60 MHz.
	if err := Apply(protocol.Command{Op: protocol.CmdSetPeriodUS, Channel: 1, Arg: 250000}); err != nil {
		t.Fatalf("SetPeriodUS failed: %v", err)
	}
	if got := Timer1.Value(); got != 14999999 {
		t.Errorf("value after SetPeriodUS command = %d, want 14999999", got)
	}

	// 1 kHz expressed in millihertz.
	if err := Apply(protocol.Command{Op: protocol.CmdSetFreqMilliHz, Channel: 1, Arg: 1000000}); err != nil {
		t.Fatalf("SetFreqMilliHz failed: %v", err)
	}
	if got := Timer1.Value(); got != 59999 {
		t.Errorf("value after SetFreqMilliHz command = %d, want 59999", got)
	}

	if err := Apply(protocol.Command{Op: protocol.CmdStart, Channel: 1}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !Timer1.Running() {
		t.Error("channel not running after Start command")
	}

	if err := Apply(protocol.Command{Op: protocol.CmdReset, Channel: 1}); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !Timer1.Running() {
		t.Error("Reset command stopped the channel")
	}

	if err := Apply(protocol.Command{Op: protocol.CmdStop, Channel: 1}); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if Timer1.Running() {
		t.Error("channel still running after Stop command")
	}
}

func TestApplyRejectsBadChannel(t *testing.T) {
	newMock(t)

	err := Apply(protocol.Command{Op: protocol.CmdStart, Channel: NumChannels})
	if err != ErrBadChannel {
		t.Errorf("got %v, want ErrBadChannel", err)
	}
}

func TestApplyRejectsUnknownOp(t *testing.T) {
	newMock(t)

	err := Apply(protocol.Command{Op: 0x42, Channel: 0})
	if err != ErrBadCommand {
		t.Errorf("got %v, want ErrBadCommand", err)
	}
}

func TestStartCommandCountsFires(t *testing.T) {
	newMock(t)

	if err := Apply(protocol.Command{Op: protocol.CmdStart, Channel: 0}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		Dispatch(0)
	}

	if got := Status(0).Fires; got != 3 {
		t.Errorf("fire count %d, want 3", got)
	}
	if got := Status(1).Fires; got != 0 {
		t.Errorf("idle channel counted %d fires", got)
	}
}

func TestSnapshotCoversAllChannels(t *testing.T) {
	m := newMock(t)

	Timer1.SetValue(100000)
	m.current[1] = 12345
	Timer1.Start(func() {})

	snap := Snapshot()
	if len(snap) != NumChannels {
		t.Fatalf("snapshot has %d entries, want %d", len(snap), NumChannels)
	}
	for i, st := range snap {
		if st.Channel != uint8(i) {
			t.Errorf("entry %d reports channel %d", i, st.Channel)
		}
	}
	if !snap[1].Running || snap[1].Load != 100000 || snap[1].Current != 12345 {
		t.Errorf("channel 1 status %+v", snap[1])
	}
	if snap[0].Running {
		t.Error("channel 0 reported running")
	}
}

func TestIdentify(t *testing.T) {
	m := newMock(t)

	id := Identify()
	if id.BusHz != m.busHz {
		t.Errorf("identity bus %d, want %d", id.BusHz, m.busHz)
	}
	if id.Channels != NumChannels {
		t.Errorf("identity channels %d, want %d", id.Channels, NumChannels)
	}
	if id.Version != protocol.Version {
		t.Errorf("identity version %q, want %q", id.Version, protocol.Version)
	}
}

func TestInitClearsMonitorState(t *testing.T) {
	m := newMock(t)

	Apply(protocol.Command{Op: protocol.CmdStart, Channel: 0})
	Dispatch(0)
	Dispatch(0)
	if Status(0).Fires == 0 {
		t.Fatal("fires not counted before reinit")
	}

	SetDriver(m)
	InitTimers()

	if got := Status(0).Fires; got != 0 {
		t.Errorf("fire count %d after reinit, want 0", got)
	}
	if got := TraceFires(); got != 0 {
		t.Errorf("trace count %d after reinit, want 0", got)
	}
}
