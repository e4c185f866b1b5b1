// Command qpsktnc is the half-duplex QPSK/IL2P packet radio core: it
// reads interleaved 16-bit I/Q PCM from stdin, demodulates and decodes
// IL2P frames onto the data-link queue, and transmits queued AX.25
// frames as QPSK PCM on stdout, arbitrated by p-persistent CSMA.
//
// Sound device handling, the KISS pseudo terminal, and the AX.25
// connected-mode state machine are external collaborators; this binary
// wires the core to plain PCM streams so the whole physical layer can
// be exercised end to end.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/n0call/qpsktnc/internal/audio"
	"github.com/n0call/qpsktnc/internal/config"
	"github.com/n0call/qpsktnc/internal/dlq"
	"github.com/n0call/qpsktnc/internal/il2p"
	"github.com/n0call/qpsktnc/internal/modem"
	"github.com/n0call/qpsktnc/internal/ptt"
	"github.com/n0call/qpsktnc/internal/sigctl"
	"github.com/n0call/qpsktnc/internal/station"
	"github.com/n0call/qpsktnc/internal/txqueue"
)

const (
	sampleRate = 9600.0
	centerFreq = 1000.0
	rrcRolloff = 0.35
	rrcTaps    = 65

	// Loop terms are radians per symbol. The bandwidth sets the lock
	// range and belongs around TAU/100 to TAU/200.
	costasBandwidth = 2 * 3.14159265358979 / 180
	costasDamping   = 0.707
	costasMaxFreq   = 1.0
	costasMinFreq   = -1.0
)

func main() {
	configFile := pflag.StringP("config-file", "c", "", "Configuration file name.")
	logLevel := pflag.StringP("log-level", "l", "info", "Log level: debug, info, warn, error.")
	channelName := pflag.StringP("channel", "n", "0", "Channel name from the configuration file.")
	maxFEC := pflag.IntP("il2p", "I", 1, "IL2P transmit FEC profile.  1 is recommended.  0 uses weaker FEC.")
	crcTrailer := pflag.BoolP("crc", "X", false, "Append a Hamming-protected CRC-16 trailer to transmitted frames.")
	costasEnable := pflag.BoolP("costas", "C", true, "Enable carrier tracking.  Disable for loopback testing.")
	help := pflag.BoolP("help", "h", false, "Display help text.")
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	}

	if err := run(*configFile, *channelName, *maxFEC != 0, *crcTrailer, *costasEnable); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configFile, channelName string, maxFEC, crcTrailer, costasEnable bool) error {
	ch := config.DefaultChannel()
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		c, ok := cfg.Channels[channelName]
		if !ok {
			return fmt.Errorf("channel %q not found in %s", channelName, configFile)
		}
		ch = c
	}

	symbolRate := float64(ch.Baud)

	shutdown := sigctl.New()
	stopWatch := shutdown.WatchSignals()
	defer stopWatch()

	dlqueue := dlq.New()
	txq := txqueue.New()
	line := ptt.Null{}

	rx := il2p.NewBitReceiver(crcTrailer)
	demod := modem.NewDemodulator(modem.DemodulatorConfig{
		SampleRate:  sampleRate,
		SymbolRate:  symbolRate,
		CenterFreq:  centerFreq,
		Rolloff:     rrcRolloff,
		Taps:        rrcTaps,
		LoopBW:      costasBandwidth,
		Damping:     costasDamping,
		MinFreq:     costasMinFreq,
		MaxFreq:     costasMaxFreq,
		CostasStart: costasEnable,
	}, rx)

	sink := audio.NewStreamSink(os.Stdout)
	mod := modem.NewModulator(modem.ModulatorConfig{
		SampleRate: sampleRate,
		SymbolRate: symbolRate,
		CenterFreq: centerFreq,
		Rolloff:    rrcRolloff,
		Taps:       rrcTaps,
	}, sink)

	var outputMu sync.Mutex
	var dcdLatch bool
	seq := txqueue.NewSequencer(txqueue.Config{
		SlotTime: ch.SlotTime,
		Persist:  ch.Persist,
		TXDelay:  ch.TXDelay,
		TXTail:   ch.TXTail,
		FullDup:  ch.FullDup,
		DWait:    ch.DWait,
	}, 0, txq, func() bool { return demod.DCD(&dcdLatch) }, &outputMu, line, dlqueue, mod, symbolRate)
	seq.SetFECProfile(maxFEC, crcTrailer)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		seq.Run(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		receiveLoop(shutdown, demod, dlqueue, symbolRate)
	}()

	heard := station.New("")
	linkLoop(shutdown, dlqueue, heard)

	close(stop)
	txq.Close()
	os.Stdin.Close() // unblocks the RX thread's audio read with EOF
	wg.Wait()
	return nil
}

// receiveLoop is the audio RX thread: pull PCM I/Q pairs from stdin,
// drive the demodulator one symbol period at a time, and post received
// frames to the data-link queue. It exits on audio EOF, carrier lock
// loss, or shutdown.
func receiveLoop(shutdown *sigctl.Flag, demod *modem.Demodulator, dlqueue *dlq.Queue, symbolRate float64) {
	src := audio.NewStreamSource(os.Stdin)
	cycles := int(sampleRate / symbolRate)
	block := make([]complex128, cycles)

	var dcdLatch, dcdPrev bool

	for !shutdown.Triggered() {
		for i := 0; i < cycles; i++ {
			s, err := src.Get()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Error("audio read failed", "error", err)
				}
				shutdown.Trigger()
				return
			}
			block[i] = s
		}

		result, err := demod.ProcessBlock(block)
		if err != nil {
			log.Debug("frame failed to decode", "error", err)
		}
		if result != nil && result.Frame != nil {
			if result.CRCChecked && !result.CRCValid {
				log.Warn("dropping frame with bad crc", "src", result.Frame.Src)
			} else {
				dlqueue.PushRecFrame(0, 0, 0, result.Frame, result.Corrected)
			}
		}

		if dcd := demod.DCD(&dcdLatch); dcd != dcdPrev {
			dcdPrev = dcd
			dlqueue.PushChannelBusy(0, dlq.ActivityDCD, dcd)
		}

		if demod.EOF() {
			log.Error("carrier lock lost, halting receiver", "offset_hz", demod.OffsetFreqHz())
			shutdown.Trigger()
			return
		}
	}
}

// linkLoop is the link-layer main loop: wait on the data-link queue and
// dispatch events until shutdown. The full AX.25 connected-mode state
// machine lives outside the core; received frames are recorded in the
// heard-stations table and logged.
func linkLoop(shutdown *sigctl.Flag, dlqueue *dlq.Queue, heard *station.Table) {
	const tick = 250 * time.Millisecond

	for !shutdown.Triggered() {
		if dlqueue.Wait(tick) {
			continue // timer tick, go back and check the shutdown flag
		}

		ev := dlqueue.Remove()
		if ev == nil {
			continue
		}

		switch ev.Type {
		case dlq.RecFrame:
			heard.Observe(ev)
			log.Info("received frame",
				"src", ev.Frame.Src, "dst", ev.Frame.Dest,
				"len", len(ev.Frame.Info), "corrected", ev.Corrected)
		case dlq.ChannelBusy:
			log.Debug("channel busy transition", "channel", ev.Channel, "activity", ev.Activity, "active", ev.Active)
		case dlq.SeizeConfirm:
			log.Debug("transmitter seized", "channel", ev.Channel)
		default:
			log.Debug("unhandled data-link event", "type", ev.Type)
		}
	}
}
