package txqueue

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/n0call/qpsktnc/internal/dlq"
	"github.com/n0call/qpsktnc/internal/il2p"
	"github.com/n0call/qpsktnc/internal/modem"
	"github.com/n0call/qpsktnc/internal/ptt"
)

// MaxBurstFrames bounds how many queued frames one clear-channel burst
// will drain before yielding.
const MaxBurstFrames = 256

// WaitTimeout is the CSMA giveup bound: if the channel or the output
// device mutex never clears within this long, the pending packet is
// discarded without ever keying PTT.
const WaitTimeout = 60 * time.Second

// checkInterval is the polling granularity of the CSMA busy-wait loop.
const checkInterval = 10 * time.Millisecond

// Config is the per-channel CSMA/PTT-timing configuration.
type Config struct {
	SlotTime int  // CSMA slot, 10ms units.
	Persist  int  // p-persistence, 0-255.
	TXDelay  int  // Preamble duration, 10ms units.
	TXTail   int  // Trailer duration, 10ms units.
	FullDup  bool // Skip CSMA entirely if true.
	DWait    int  // Post-busy debounce, 10ms units.
}

// Sequencer is the single dedicated transmit thread for one channel:
// it arbitrates channel access via CSMA, keys PTT, bursts up to
// MaxBurstFrames queued packets, and releases the channel.
type Sequencer struct {
	cfg     Config
	channel int

	queue    *Queue
	dcd      func() bool
	outputMu *sync.Mutex
	line     ptt.Line
	dlq      *dlq.Queue
	mod      *modem.Modulator

	bitsPerSymbol int
	symbolRate    float64
	maxFEC        bool
	crcEnabled    bool

	now   func() time.Time
	sleep func(time.Duration)
	rand  func() int
}

// NewSequencer builds a sequencer for one radio channel. outputMu is
// shared across every channel driving the same audio output device and
// is held for the entire burst, preamble through tail.
func NewSequencer(cfg Config, channel int, queue *Queue, dcd func() bool, outputMu *sync.Mutex, line ptt.Line, dlqueue *dlq.Queue, mod *modem.Modulator, symbolRate float64) *Sequencer {
	return &Sequencer{
		cfg:           cfg,
		channel:       channel,
		queue:         queue,
		dcd:           dcd,
		outputMu:      outputMu,
		line:          line,
		dlq:           dlqueue,
		mod:           mod,
		bitsPerSymbol: 2, // QPSK
		symbolRate:    symbolRate,
		now:           time.Now,
		sleep:         time.Sleep,
		rand:          func() int { return rand.Intn(256) },
	}
}

// SetFECProfile controls whether EncodeFrame is asked for max-FEC
// header/payload profiles, and whether a supplemental CRC trailer is
// appended.
func (s *Sequencer) SetFECProfile(maxFEC, crcEnabled bool) {
	s.maxFEC = maxFEC
	s.crcEnabled = crcEnabled
}

// Run drives the sequencer forever: wait for something to send, then
// attempt one burst. It returns when stop is closed.
func (s *Sequencer) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if s.queue.IsEmpty() {
			s.queue.Wait()
			continue
		}

		if _, err := s.RunOnce(); err != nil {
			log.Error("transmit burst failed", "channel", s.channel, "error", err)
		}
	}
}

// RunOnce arbitrates channel access and, if it clears, transmits
// everything currently queued (up to MaxBurstFrames). It returns false,
// with nothing transmitted and PTT never asserted, if the channel never
// cleared within WaitTimeout; the pending packet is dropped.
func (s *Sequencer) RunOnce() (bool, error) {
	if s.queue.IsEmpty() {
		return true, nil
	}

	if !s.waitForClearChannel() {
		_, pkt := s.queue.RemoveAny()
		if pkt != nil && pkt.Frame != nil {
			log.Warn("channel never cleared, discarding frame", "channel", s.channel, "dst", pkt.Frame.Dest)
		} else {
			log.Warn("channel never cleared, discarding pending transmission", "channel", s.channel)
		}
		return false, nil
	}
	defer s.outputMu.Unlock()

	return true, s.burst()
}

// waitForClearChannel arbitrates channel access: skip entirely in full
// duplex; otherwise wait out DCD, apply dwait debounce and
// p-persistent slot backoff, then acquire the shared output mutex.
// Every stage is bounded by WaitTimeout.
func (s *Sequencer) waitForClearChannel() bool {
	if s.cfg.FullDup {
		return s.tryLockOutput()
	}

	for {
		if !s.waitWhileBusy() {
			return false
		}

		if s.cfg.DWait > 0 {
			s.sleep(time.Duration(s.cfg.DWait) * 10 * time.Millisecond)
			if s.dcd() {
				continue
			}
		}

		cleared, restart := s.waitSlotBackoff()
		if restart {
			continue
		}
		if !cleared {
			return false
		}
		break
	}

	return s.tryLockOutput()
}

// waitWhileBusy blocks while dcd() is true, bounded by WaitTimeout.
func (s *Sequencer) waitWhileBusy() bool {
	deadline := s.now().Add(WaitTimeout)
	for s.dcd() {
		if s.now().After(deadline) {
			return false
		}
		s.sleep(checkInterval)
	}
	return true
}

// waitSlotBackoff waits slottime increments until either the HI queue
// gets something or a Bernoulli((persist+1)/256) trial succeeds (a random
// byte no greater than persist). restart is
// true if the channel went busy mid-wait and arbitration must start
// over from waitWhileBusy.
func (s *Sequencer) waitSlotBackoff() (cleared, restart bool) {
	deadline := s.now().Add(WaitTimeout)
	for s.queue.Peek(PriorityHI) == nil {
		if s.now().After(deadline) {
			return false, false
		}
		s.sleep(time.Duration(s.cfg.SlotTime) * 10 * time.Millisecond)

		if s.dcd() {
			return false, true
		}
		if s.rand()&0xff <= s.cfg.Persist {
			return true, false
		}
	}
	return true, false
}

func (s *Sequencer) tryLockOutput() bool {
	deadline := s.now().Add(WaitTimeout)
	for !s.outputMu.TryLock() {
		if s.now().After(deadline) {
			return false
		}
		s.sleep(checkInterval)
	}
	return true
}

// burst keys PTT, sends the TX-delay preamble, drains up to
// MaxBurstFrames queued packets (HI strictly before LO), sends the
// TX-tail, and keys PTT back off after sleeping out whatever's left of
// the nominal burst duration.
func (s *Sequencer) burst() error {
	if err := s.line.Set(ptt.OutputPTT, true); err != nil {
		return fmt.Errorf("txqueue: ptt on: %w", err)
	}
	startPTT := s.now()
	s.dlq.PushSeizeConfirm(s.channel)

	bitRate := s.symbolRate * float64(s.bitsPerSymbol)
	totalBits := 0.0

	preOctets := msToOctets(s.cfg.TXDelay*10, bitRate)
	if err := s.mod.SendIdle(preOctets); err != nil {
		return err
	}
	totalBits += float64(preOctets) * 8

	sent := 0
	for sent < MaxBurstFrames {
		_, pkt := s.queue.RemoveAny()
		if pkt == nil {
			break
		}
		nbits, err := s.transmitFrame(pkt)
		if err != nil {
			log.Error("dropping frame that failed to encode", "channel", s.channel, "error", err)
			continue
		}
		totalBits += float64(nbits)
		sent++
	}

	tailOctets := msToOctets(s.cfg.TXTail*10, bitRate)
	if err := s.mod.SendIdle(tailOctets); err != nil {
		return err
	}
	totalBits += float64(tailOctets) * 8

	s.alignPTTOff(startPTT, totalBits, bitRate)

	return s.line.Set(ptt.OutputPTT, false)
}

// transmitFrame IL2P-encodes one packet and sends it, returning the
// number of bits it put on the air.
func (s *Sequencer) transmitFrame(pkt *Packet) (int, error) {
	encoded, err := il2p.EncodeFrame(pkt.Frame, s.maxFEC, s.crcEnabled)
	if err != nil {
		return 0, fmt.Errorf("txqueue: encode frame: %w", err)
	}
	if err := s.mod.SendBytes(encoded); err != nil {
		return 0, err
	}
	return len(encoded) * 8, nil
}

// alignPTTOff sleeps out whatever's left of the nominal burst duration
// (computed from total bits sent at the channel bit rate) beyond what's
// already elapsed since PTT went on, so PTT turns off right as the last
// audio finishes draining.
func (s *Sequencer) alignPTTOff(startPTT time.Time, totalBits, bitRate float64) {
	if err := s.mod.Flush(); err != nil {
		log.Warn("audio flush failed before ptt off", "channel", s.channel, "error", err)
	}

	nominal := time.Duration(totalBits / bitRate * float64(time.Second))
	elapsed := s.now().Sub(startPTT)
	waitMore := nominal - elapsed

	if waitMore > 0 {
		s.sleep(waitMore)
	} else if waitMore < -100*time.Millisecond {
		log.Error("transmit timing error: ptt held too long", "channel", s.channel, "over", -waitMore)
	}
}

// msToOctets converts a duration in milliseconds to a whole number of
// octets at the given bit rate.
func msToOctets(ms int, bitRate float64) int {
	bits := float64(ms) / 1000 * bitRate
	return int(bits) / 8
}
