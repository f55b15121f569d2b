package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/careloop/eldermed/internal/escalation"
)

// ErrNotFound is returned when no medication has the given id.
var ErrNotFound = errors.New("medication not found")

// Store is the sqlite-backed medication schedule. It owns persistence; the
// escalation engine only drives the taken/alert_stage columns through the
// ScheduleStore interface.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS medications (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	common_name TEXT NOT NULL DEFAULT '',
	dosage      TEXT NOT NULL DEFAULT '',
	dose_form   TEXT NOT NULL DEFAULT 'pills',
	appearance  TEXT NOT NULL DEFAULT '',
	time_of_day TEXT NOT NULL,
	instruction TEXT NOT NULL DEFAULT '',
	taken       INTEGER NOT NULL DEFAULT 0,
	taken_at    INTEGER,
	taken_note  TEXT NOT NULL DEFAULT '',
	alert_stage INTEGER NOT NULL DEFAULT 0,
	voice_clip  TEXT NOT NULL DEFAULT '',
	quantity    INTEGER NOT NULL DEFAULT 0,
	reorder_at  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_medications_taken ON medications(taken);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const medColumns = `id, name, common_name, dosage, dose_form, appearance,
	time_of_day, instruction, taken, taken_at, taken_note, alert_stage,
	voice_clip, quantity, reorder_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedication(row rowScanner) (escalation.Medication, error) {
	var m escalation.Medication
	var taken int
	var takenAt sql.NullInt64
	var stage int
	err := row.Scan(&m.ID, &m.Name, &m.CommonName, &m.Dosage, &m.DoseForm,
		&m.Appearance, &m.TimeOfDay, &m.Instruction, &taken, &takenAt,
		&m.TakenNote, &stage, &m.VoiceClip, &m.Quantity, &m.ReorderAt)
	if err != nil {
		return m, err
	}
	m.Taken = taken != 0
	if takenAt.Valid {
		t := time.UnixMilli(takenAt.Int64)
		m.TakenAt = &t
	}
	m.AlertStage = escalation.Stage(stage)
	return m, nil
}

// Add inserts a medication, assigning an id when none is set, and returns
// the stored record.
func (s *Store) Add(m escalation.Medication) (escalation.Medication, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.DoseForm == "" {
		m.DoseForm = "pills"
	}
	_, err := s.db.Exec(`
		INSERT INTO medications (id, name, common_name, dosage, dose_form,
			appearance, time_of_day, instruction, taken, taken_note,
			alert_stage, voice_clip, quantity, reorder_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '', 0, ?, ?, ?, ?)`,
		m.ID, m.Name, m.CommonName, m.Dosage, m.DoseForm, m.Appearance,
		m.TimeOfDay, m.Instruction, m.VoiceClip, m.Quantity, m.ReorderAt,
		time.Now().UnixMilli())
	if err != nil {
		return m, fmt.Errorf("insert medication: %w", err)
	}
	m.Taken = false
	m.AlertStage = escalation.StageNone
	return m, nil
}

func (s *Store) Get(id string) (escalation.Medication, error) {
	row := s.db.QueryRow(`SELECT `+medColumns+` FROM medications WHERE id = ?`, id)
	m, err := scanMedication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

// List returns the whole schedule ordered by time of day.
func (s *Store) List() ([]escalation.Medication, error) {
	rows, err := s.db.Query(`SELECT ` + medColumns + ` FROM medications ORDER BY time_of_day, name`)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// ListUntaken returns medications still pending for the current occurrence,
// ordered by time of day.
func (s *Store) ListUntaken() ([]escalation.Medication, error) {
	rows, err := s.db.Query(`SELECT ` + medColumns + ` FROM medications WHERE taken = 0 ORDER BY time_of_day, name`)
	if err != nil {
		return nil, fmt.Errorf("list untaken: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]escalation.Medication, error) {
	var out []escalation.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Update rewrites the editable fields of a medication. The taken/alert
// columns are driven by the engine, not by edits.
func (s *Store) Update(m escalation.Medication) error {
	res, err := s.db.Exec(`
		UPDATE medications SET name = ?, common_name = ?, dosage = ?,
			dose_form = ?, appearance = ?, time_of_day = ?, instruction = ?,
			voice_clip = ?, quantity = ?, reorder_at = ?
		WHERE id = ?`,
		m.Name, m.CommonName, m.Dosage, m.DoseForm, m.Appearance,
		m.TimeOfDay, m.Instruction, m.VoiceClip, m.Quantity, m.ReorderAt, m.ID)
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	return requireRow(res)
}

func (s *Store) Remove(id string) error {
	res, err := s.db.Exec(`DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove medication: %w", err)
	}
	return requireRow(res)
}

// UpdateStage persists a late-stage transition so it survives restarts.
func (s *Store) UpdateStage(id string, stage escalation.Stage) error {
	res, err := s.db.Exec(`UPDATE medications SET alert_stage = ? WHERE id = ?`, int(stage), id)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return requireRow(res)
}

// MarkTaken records the dose: taken flag, timestamp, stage reset, and one
// unit off the stock counter when stock is tracked.
func (s *Store) MarkTaken(id string, at time.Time) error {
	res, err := s.db.Exec(`
		UPDATE medications SET taken = 1, taken_at = ?, alert_stage = 0,
			quantity = CASE WHEN quantity > 0 THEN quantity - 1 ELSE 0 END
		WHERE id = ?`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark taken: %w", err)
	}
	return requireRow(res)
}

// MarkUntaken undoes a mistaken take. Stage resets to none so escalation
// restarts from a clean slate.
func (s *Store) MarkUntaken(id string) error {
	res, err := s.db.Exec(`
		UPDATE medications SET taken = 0, taken_at = NULL, taken_note = '', alert_stage = 0
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark untaken: %w", err)
	}
	return requireRow(res)
}

// SetTakenNote attaches a free-form proof note to an already taken dose.
func (s *Store) SetTakenNote(id, note string) error {
	res, err := s.db.Exec(`UPDATE medications SET taken_note = ? WHERE id = ? AND taken = 1`, note, id)
	if err != nil {
		return fmt.Errorf("set taken note: %w", err)
	}
	return requireRow(res)
}

// ResetDay starts a new daily occurrence for every medication.
func (s *Store) ResetDay() error {
	_, err := s.db.Exec(`UPDATE medications SET taken = 0, taken_at = NULL, taken_note = '', alert_stage = 0`)
	if err != nil {
		return fmt.Errorf("reset day: %w", err)
	}
	return nil
}

// LowStock lists medications whose remaining quantity has reached the
// reorder threshold.
func (s *Store) LowStock() ([]escalation.Medication, error) {
	rows, err := s.db.Query(`SELECT ` + medColumns + ` FROM medications
		WHERE reorder_at > 0 AND quantity <= reorder_at ORDER BY quantity`)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// Adherence returns today's taken and total dose counts.
func (s *Store) Adherence() (taken, total int, err error) {
	row := s.db.QueryRow(`SELECT COUNT(1), COALESCE(SUM(taken), 0) FROM medications`)
	if err := row.Scan(&total, &taken); err != nil {
		return 0, 0, fmt.Errorf("adherence: %w", err)
	}
	return taken, total, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
