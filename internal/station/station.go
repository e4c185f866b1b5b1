// Package station maintains a "heard stations" table driven off
// successfully decoded frames: one entry per source callsign with a
// frame count, last-heard timestamp, most recent channel, and a
// position when the station's info text carries a Maidenhead grid
// locator.
package station

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/tzneal/coordconv"

	"github.com/n0call/qpsktnc/internal/ax25"
	"github.com/n0call/qpsktnc/internal/dlq"
)

// Entry is what the table tracks for one heard station.
type Entry struct {
	Call        string
	SSID        int
	Count       int
	Channel     int
	Corrected   int
	LastHeardRF time.Time
	Grid        string
	Lat, Lon    float64
	HasLocation bool
}

// Table is the heard-stations map, guarded by a mutex so both the DLQ
// consumer goroutine and a status-dump caller can use it concurrently.
type Table struct {
	mu       sync.Mutex
	byCall   map[string]*Entry
	now      func() time.Time
	tsLayout string
}

// New returns an empty table. tsLayout is a strftime layout used when
// formatting log lines (default "%Y-%m-%d %H:%M:%S").
func New(tsLayout string) *Table {
	if tsLayout == "" {
		tsLayout = "%Y-%m-%d %H:%M:%S"
	}
	return &Table{byCall: make(map[string]*Entry), now: time.Now, tsLayout: tsLayout}
}

// Observe updates the table from one DLQ event. Only RecFrame events
// carry a source station to record; anything else is ignored.
func (t *Table) Observe(ev *dlq.Event) {
	if ev == nil || ev.Type != dlq.RecFrame || ev.Frame == nil {
		return
	}
	t.record(ev.Frame, ev.Channel, ev.Corrected)
}

func (t *Table) record(f *ax25.Frame, channel, corrected int) {
	key := f.Src.String()

	t.mu.Lock()
	e, ok := t.byCall[key]
	if !ok {
		e = &Entry{Call: f.Src.Call, SSID: f.Src.SSID}
		t.byCall[key] = e
	}
	e.Count++
	e.Channel = channel
	e.Corrected += corrected
	e.LastHeardRF = t.now()

	if grid, ok := extractGrid(f.Info); ok {
		if lat, lon, err := gridToLatLon(grid); err == nil {
			e.Grid, e.Lat, e.Lon, e.HasLocation = grid, lat, lon, true
		}
	}
	t.mu.Unlock()

	ts, err := strftime.Format(t.tsLayout, e.LastHeardRF)
	if err != nil {
		ts = e.LastHeardRF.Format(time.RFC3339)
	}
	log.Info("heard station", "call", key, "channel", channel, "corrected", corrected, "at", ts)
}

// Lookup returns the current entry for a callsign, if heard.
func (t *Table) Lookup(call string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byCall[call]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len reports how many distinct stations have been heard.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byCall)
}

// extractGrid looks for a leading 4- or 6-character Maidenhead locator
// in an APRS-style position comment, the conventional place one appears
// in info text that isn't a compressed/NMEA position report (those are
// out of scope; this only recovers the plain-text locator form).
func extractGrid(info []byte) (string, bool) {
	s := strings.TrimSpace(string(info))
	for _, n := range []int{6, 4} {
		if len(s) < n {
			continue
		}
		cand := s[:n]
		if looksLikeGrid(cand) {
			return strings.ToUpper(cand), true
		}
	}
	return "", false
}

func looksLikeGrid(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i += 2 {
		lon, lat := s[i], s[i+1]
		switch i {
		case 0: // field: letters A-R
			if !letterInRange(lon, 'A', 'R') || !letterInRange(lat, 'A', 'R') {
				return false
			}
		case 4: // subsquare: letters A-X
			if !letterInRange(lon, 'A', 'X') || !letterInRange(lat, 'A', 'X') {
				return false
			}
		default: // square: digits
			if !inRange(lon, '0', '9') || !inRange(lat, '0', '9') {
				return false
			}
		}
	}
	return true
}

func letterInRange(c, lo, hi byte) bool {
	return inRange(c, lo, hi) || inRange(c, lo|0x20, hi|0x20)
}

func inRange(c, lo, hi byte) bool { return c >= lo && c <= hi }

// mhPair holds the character range and place-value for one pair of a
// Maidenhead locator.
type mhPair struct {
	minCh, maxCh byte
	value        int
}

var mhPairs = []mhPair{
	{'A', 'R', 10 * 24 * 10 * 24 * 10 * 2},
	{'0', '9', 24 * 10 * 24 * 10 * 2},
	{'A', 'X', 10 * 24 * 10 * 2},
	{'0', '9', 24 * 10 * 2},
}

const mhUnits = 18 * 10 * 24 * 10 * 24 * 10 * 2

// gridToLatLon converts a 4- or 6-character Maidenhead locator to its
// center latitude/longitude, classifying the result through
// coordconv.Hemisphere as a sanity check on the arithmetic.
func gridToLatLon(grid string) (float64, float64, error) {
	np := len(grid) / 2
	if len(grid)%2 != 0 || np < 1 || np > len(mhPairs) {
		return 0, 0, fmt.Errorf("station: invalid grid square %q", grid)
	}

	mh := strings.ToUpper(grid)
	var ilat, ilon int
	for n := 0; n < np; n++ {
		p := mhPairs[n]
		if mh[2*n] < p.minCh || mh[2*n] > p.maxCh || mh[2*n+1] < p.minCh || mh[2*n+1] > p.maxCh {
			return 0, 0, fmt.Errorf("station: grid square %q pair %d out of range", grid, n)
		}
		ilon += int(mh[2*n]-p.minCh) * p.value
		ilat += int(mh[2*n+1]-p.minCh) * p.value
		if n == np-1 {
			ilon += p.value / 2
			ilat += p.value / 2
		}
	}

	dlat := float64(ilat)/mhUnits*180 - 90
	dlon := float64(ilon)/mhUnits*360 - 180

	latHemi := coordconv.HemisphereNorth
	if dlat < 0 {
		latHemi = coordconv.HemisphereSouth
	}
	if hemisphereToRune(latHemi) == 0 {
		return 0, 0, fmt.Errorf("station: grid square %q produced invalid hemisphere", grid)
	}

	return dlat, dlon, nil
}

// hemisphereToRune maps a coordconv hemisphere to its letter, 0 when
// invalid.
func hemisphereToRune(h coordconv.Hemisphere) rune {
	switch h {
	case coordconv.HemisphereNorth:
		return 'N'
	case coordconv.HemisphereSouth:
		return 'S'
	default:
		return 0
	}
}
