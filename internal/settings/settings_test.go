package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFirstBootProvisionsDefaults(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		key  Key
		want uint16
	}{
		{KeyMaxCurtainLength, DefaultMaxCurtainLength},
		{KeyFullCurtainLength, DefaultFullCurtainLength},
		{KeyMinimumVoltage, DefaultMinimumVoltage},
		{KeyDefaultSpeed, DefaultSpeed},
		{KeyAutoCalibration, DefaultAutoCalibration},
	}
	for _, tt := range tests {
		v, err := s.Read(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v, "key 0x%04X", uint16(tt.key))
	}
}

func TestProvisionedDefaultSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Read(KeyDefaultSpeed)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// The default was written back, so a fresh open reads the row.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	v, err := s2.Read(KeyDefaultSpeed)
	require.NoError(t, err)
	assert.Equal(t, DefaultSpeed, v)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	for _, v := range []uint16{0, 1, 1000, 13090, 65535} {
		require.NoError(t, s.Write(KeyMaxCurtainLength, v))
		got, err := s.Read(KeyMaxCurtainLength)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestWriteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(KeyMinimumVoltage, 112))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	v, err := s2.Read(KeyMinimumVoltage)
	require.NoError(t, err)
	assert.Equal(t, uint16(112), v)
}

func TestWriteGateBlocksPersist(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Write(KeyDefaultSpeed, 20))

	gateOpen := false
	s.SetWriteGate(func() bool { return gateOpen })

	require.NoError(t, s.Write(KeyDefaultSpeed, 40))
	v, err := s.Read(KeyDefaultSpeed)
	require.NoError(t, err)
	assert.Equal(t, uint16(20), v, "closed gate must drop the write silently")

	gateOpen = true
	require.NoError(t, s.Write(KeyDefaultSpeed, 40))
	v, err = s.Read(KeyDefaultSpeed)
	require.NoError(t, err)
	assert.Equal(t, uint16(40), v)
}

func TestUnknownKeyRejected(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Read(Key(0x1234))
	assert.Error(t, err)
	assert.Error(t, s.Write(Key(0x1234), 1))
}
