package theme

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	values map[string]string
	err    error
}

func (m *mapStore) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *mapStore) Set(key, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func always(v bool) SystemPreference { return func() bool { return v } }

func TestNew_InitialValue(t *testing.T) {
	tests := []struct {
		name   string
		stored map[string]string
		system SystemPreference
		want   bool
	}{
		{"stored dark beats light system", map[string]string{KeyTheme: "dark"}, always(false), true},
		{"stored light beats dark system", map[string]string{KeyTheme: "light"}, always(true), false},
		{"system dark", map[string]string{}, always(true), true},
		{"garbage falls back to system", map[string]string{KeyTheme: "sepia"}, always(true), true},
		{"no preference at all", map[string]string{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&mapStore{values: tt.stored}, tt.system)
			assert.Equal(t, tt.want, s.Dark())
		})
	}
}

func TestToggle_Persists(t *testing.T) {
	store := &mapStore{values: map[string]string{}}
	s := New(store, always(false))

	dark, err := s.Toggle()
	require.NoError(t, err)
	assert.True(t, dark)
	assert.Equal(t, "dark", store.values[KeyTheme])
	assert.Equal(t, "dark", s.Name())

	dark, err = s.Toggle()
	require.NoError(t, err)
	assert.False(t, dark)
	assert.Equal(t, "light", store.values[KeyTheme])
}

func TestToggle_WriteFailure(t *testing.T) {
	store := &mapStore{values: map[string]string{}, err: errors.New("read-only")}
	s := New(store, nil)

	dark, err := s.Toggle()
	assert.Error(t, err)
	assert.True(t, dark)
	assert.True(t, s.Dark())
}

func TestPalette_FollowsTheme(t *testing.T) {
	s := New(&mapStore{values: map[string]string{KeyTheme: "dark"}}, nil)
	assert.True(t, s.Palette().Dark)
	assert.False(t, NewPalette(false).Dark)
}
