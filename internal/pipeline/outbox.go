package pipeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/atomicfile"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// changeOutbox holds change events from the moment they are derived until a
// publish succeeds. Events are staged before the hours table is saved, so a
// crash or broker failure after the save leaves them on disk for the next
// drain. Delivery is at least once.
type changeOutbox struct {
	path string
	mu   sync.Mutex
}

// outboxPath places the outbox next to the hours table:
// park_hours.csv pairs with park_hours_outbox.jsonl.
func outboxPath(hoursPath string) string {
	ext := filepath.Ext(hoursPath)
	return strings.TrimSuffix(hoursPath, ext) + "_outbox.jsonl"
}

type eventKey struct {
	parkCode  string
	parkDate  time.Time
	versionID int64
}

func keyOf(ev domain.ChangeEvent) eventKey {
	return eventKey{parkCode: ev.ParkCode, parkDate: domain.DateOf(ev.ParkDate), versionID: ev.Current.VersionID}
}

// stage merges events into the outbox. A replayed batch re-derives events
// with the same version ids; the newer event replaces the staged one.
func (o *changeOutbox) stage(events []domain.ChangeEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, err := o.load()
	if err != nil {
		return err
	}
	pos := make(map[eventKey]int, len(pending))
	for i, ev := range pending {
		pos[keyOf(ev)] = i
	}
	for _, ev := range events {
		if i, ok := pos[keyOf(ev)]; ok {
			pending[i] = ev
			continue
		}
		pos[keyOf(ev)] = len(pending)
		pending = append(pending, ev)
	}
	return o.save(pending)
}

// drain publishes every staged event that keep accepts and empties the
// outbox. Rejected events are discarded. On a publish failure the outbox is
// left untouched.
func (o *changeOutbox) drain(
	keep func(domain.ChangeEvent) bool,
	publish func([]domain.ChangeEvent) error,
) (sent, dropped int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, err := o.load()
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}
	live := make([]domain.ChangeEvent, 0, len(pending))
	for _, ev := range pending {
		if keep(ev) {
			live = append(live, ev)
		}
	}
	dropped = len(pending) - len(live)
	if len(live) > 0 {
		if err := publish(live); err != nil {
			return 0, dropped, err
		}
	}
	return len(live), dropped, o.save(nil)
}

func (o *changeOutbox) load() ([]domain.ChangeEvent, error) {
	f, err := os.Open(o.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open change outbox: %w", err)
	}
	defer f.Close()

	var events []domain.ChangeEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}
		var ev domain.ChangeEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("change outbox line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read change outbox: %w", err)
	}
	return events, nil
}

func (o *changeOutbox) save(events []domain.ChangeEvent) error {
	return atomicfile.WriteFile(o.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	})
}
