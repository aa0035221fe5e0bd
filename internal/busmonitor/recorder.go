package busmonitor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
)

const (
	defaultQueueSize = 256
	timeFormat       = time.RFC3339Nano
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SeenDevice is one row of cec_devices.
type SeenDevice struct {
	LogicalAddress  cec.LogicalAddress  `json:"logical_address"`
	Name            string              `json:"name"`
	PhysicalAddress cec.PhysicalAddress `json:"physical_address"`
	DeviceType      string              `json:"device_type,omitempty"`
	FirstSeen       time.Time           `json:"first_seen"`
	LastSeen        time.Time           `json:"last_seen"`
	LastOpcode      string              `json:"last_opcode"`
	Frames          int64               `json:"frames"`
}

// sighting is one queued write.
type sighting struct {
	la     cec.LogicalAddress
	pa     cec.PhysicalAddress
	hasPA  bool
	devTyp string
	opcode string
	at     time.Time
}

// Recorder persists bus sightings. It implements unit.Observer.
//
// Thread Safety: MessageReceived may be called from any goroutine.
type Recorder struct {
	unit.NopObserver

	db     *sql.DB
	logger Logger
	queue  chan sighting

	upsert *sql.Stmt

	recorded atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Ensure Recorder implements unit.Observer.
var _ unit.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder. The database must have the cec_devices
// table (see migrations).
func NewRecorder(db *sql.DB, logger Logger) *Recorder {
	return &Recorder{
		db:     db,
		logger: logger,
		queue:  make(chan sighting, defaultQueueSize),
		done:   make(chan struct{}),
	}
}

// Start prepares the upsert statement and starts the writer goroutine.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}

	// Physical address and type are only overwritten when the frame carried them.
	stmt, err := r.db.Prepare(`
		INSERT INTO cec_devices (logical_address, physical_address, device_type, first_seen, last_seen, last_opcode, frames)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(logical_address) DO UPDATE SET
			physical_address = COALESCE(excluded.physical_address, physical_address),
			device_type = COALESCE(excluded.device_type, device_type),
			last_seen = excluded.last_seen,
			last_opcode = excluded.last_opcode,
			frames = frames + 1
	`)
	if err != nil {
		return fmt.Errorf("preparing device upsert statement: %w", err)
	}
	r.upsert = stmt
	r.started = true

	r.wg.Add(1)
	go r.writeLoop()
	return nil
}

// Close drains queued sightings and stops the writer. A closed recorder
// cannot be restarted.
func (r *Recorder) Close() {
	r.mu.Lock()
	wasStarted := r.started
	r.started = false
	r.closed = true
	r.mu.Unlock()

	if !wasStarted {
		return
	}

	close(r.done)
	r.wg.Wait()
	r.upsert.Close() //nolint:errcheck // shutdown
}

// MessageReceived queues a sighting of the frame's sender.
func (r *Recorder) MessageReceived(msg cec.Message) {
	if !msg.Source.IsValid() || msg.Source == cec.AddrUnregistered {
		return
	}

	s := sighting{la: msg.Source, opcode: msg.Opcode.String(), at: msg.Timestamp}
	if s.at.IsZero() {
		s.at = time.Now()
	}

	switch msg.Opcode {
	case cec.OpReportPhysicalAddress:
		if len(msg.Params) >= 3 {
			s.pa, s.hasPA = msg.PhysicalAddress(), true
			s.devTyp = cec.DeviceType(msg.Params[2]).String()
		}
	case cec.OpActiveSource, cec.OpInactiveSource:
		s.pa, s.hasPA = msg.PhysicalAddress(), true
	}

	select {
	case r.queue <- s:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.logWarn("sighting queue full, dropping", "dropped_total", r.dropped.Load())
		}
	}
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case s := <-r.queue:
			r.write(s)
		case <-r.done:
			for {
				select {
				case s := <-r.queue:
					r.write(s)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(s sighting) {
	var pa, devType any
	if s.hasPA {
		pa = s.pa.String()
	}
	if s.devTyp != "" {
		devType = s.devTyp
	}

	ts := s.at.UTC().Format(timeFormat)
	if _, err := r.upsert.Exec(int(s.la), pa, devType, ts, ts, s.opcode); err != nil {
		r.logError("recording device", err, "logical_address", s.la.String())
		return
	}
	r.recorded.Add(1)
}

// Devices returns every recorded device, most recently seen first.
func (r *Recorder) Devices(ctx context.Context) ([]SeenDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT logical_address, physical_address, device_type, first_seen, last_seen, last_opcode, frames
		FROM cec_devices
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []SeenDevice
	for rows.Next() {
		var (
			la                  int
			pa, devType         sql.NullString
			firstSeen, lastSeen string
			d                   SeenDevice
		)
		if err := rows.Scan(&la, &pa, &devType, &firstSeen, &lastSeen, &d.LastOpcode, &d.Frames); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}

		d.LogicalAddress = cec.LogicalAddress(la) //nolint:gosec // CHECK constraint keeps 0-15
		d.Name = d.LogicalAddress.String()
		d.PhysicalAddress = cec.InvalidPhysicalAddress
		if pa.Valid {
			if parsed, err := cec.ParsePhysicalAddress(pa.String); err == nil {
				d.PhysicalAddress = parsed
			}
		}
		d.DeviceType = devType.String
		d.FirstSeen, _ = time.Parse(timeFormat, firstSeen) //nolint:errcheck // written by us
		d.LastSeen, _ = time.Parse(timeFormat, lastSeen)   //nolint:errcheck // written by us
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Forget deletes the record for one logical address.
func (r *Recorder) Forget(ctx context.Context, la cec.LogicalAddress) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM cec_devices WHERE logical_address = ?", int(la)); err != nil {
		return fmt.Errorf("forgetting device: %w", err)
	}
	return nil
}

// Recorded returns the number of sightings written.
func (r *Recorder) Recorded() uint64 { return r.recorded.Load() }

// Dropped returns the number of sightings dropped on a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

func (r *Recorder) logWarn(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, keysAndValues...)
	}
}

func (r *Recorder) logError(msg string, err error, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
