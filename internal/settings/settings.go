package settings

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/openblinds/blindctl/internal/logger"
)

// Key is the virtual address of a persisted parameter. The addresses match
// the layout the factory board used in its emulated EEPROM, so a settings
// dump stays comparable across firmware generations.
type Key uint16

const (
	KeyMaxCurtainLength  Key = 0x5555 // soft bottom limit, ticks
	KeyFullCurtainLength Key = 0x6666 // factory bottom limit, ticks
	KeyMinimumVoltage    Key = 0x7777 // units of 1/16 V, 0 disables check
	KeyDefaultSpeed      Key = 0x8888 // RPM
	KeyAutoCalibration   Key = 0x9999 // boolean
)

// Defaults written back on first boot.
const (
	DefaultFullCurtainLength uint16 = 13090
	DefaultMaxCurtainLength  uint16 = 13090
	DefaultMinimumVoltage    uint16 = 0
	DefaultSpeed             uint16 = 25
	DefaultAutoCalibration   uint16 = 1
)

func provisioningDefault(key Key) (uint16, bool) {
	switch key {
	case KeyMaxCurtainLength:
		return DefaultMaxCurtainLength, true
	case KeyFullCurtainLength:
		return DefaultFullCurtainLength, true
	case KeyMinimumVoltage:
		return DefaultMinimumVoltage, true
	case KeyDefaultSpeed:
		return DefaultSpeed, true
	case KeyAutoCalibration:
		return DefaultAutoCalibration, true
	}
	return 0, false
}

// WriteGate reports whether a persist is currently allowed. The motor
// controller installs a func returning true only while the motor is
// stopped, keeping storage writes clear of motor switching transients.
type WriteGate func() bool

// Store is a typed accessor over the five persisted parameters.
type Store struct {
	db   *sql.DB
	log  *zap.SugaredLogger
	mu   sync.Mutex
	gate WriteGate
	// cache avoids hitting the database from hot paths
	cache map[Key]uint16
}

// Open opens (creating if needed) the parameter database.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:    db,
		log:   logger.Sugar().With("component", "settings"),
		cache: make(map[Key]uint16),
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		addr INTEGER PRIMARY KEY,
		value INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SetWriteGate installs the persist precondition. A nil gate allows all
// writes (used before the motor controller exists, and in tests).
func (s *Store) SetWriteGate(gate WriteGate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = gate
}

// Read returns the stored value for key. On first boot the provisioning
// default is written back so later reads hit the stored row.
func (s *Store) Read(key Key) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache[key]; ok {
		return v, nil
	}

	var value int64
	err := s.db.QueryRow("SELECT value FROM settings WHERE addr = ?", int64(key)).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		def, ok := provisioningDefault(key)
		if !ok {
			return 0, fmt.Errorf("unknown setting 0x%04X", uint16(key))
		}
		if _, werr := s.db.Exec("INSERT INTO settings (addr, value) VALUES (?, ?)", int64(key), int64(def)); werr != nil {
			return 0, fmt.Errorf("failed to provision setting 0x%04X: %w", uint16(key), werr)
		}
		s.log.Infow("provisioned setting", "addr", fmt.Sprintf("0x%04X", uint16(key)), "value", def)
		s.cache[key] = def
		return def, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read setting 0x%04X: %w", uint16(key), err)
	}

	v := uint16(value)
	s.cache[key] = v
	return v, nil
}

// Write persists a value. It is a no-op when the write gate refuses (motor
// not stopped) or when the value already matches the stored one.
func (s *Store) Write(key Key, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := provisioningDefault(key); !ok {
		return fmt.Errorf("unknown setting 0x%04X", uint16(key))
	}

	if s.gate != nil && !s.gate() {
		s.log.Debugw("persist refused, motor not stopped", "addr", fmt.Sprintf("0x%04X", uint16(key)))
		return nil
	}

	if v, ok := s.cache[key]; ok && v == value {
		return nil
	}

	_, err := s.db.Exec(`
		INSERT INTO settings (addr, value) VALUES (?, ?)
		ON CONFLICT(addr) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, int64(key), int64(value))
	if err != nil {
		return fmt.Errorf("failed to write setting 0x%04X: %w", uint16(key), err)
	}

	s.cache[key] = value
	s.log.Infow("persisted setting", "addr", fmt.Sprintf("0x%04X", uint16(key)), "value", value)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
