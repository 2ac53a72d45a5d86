package update

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealth struct {
	doc map[string]any
	err error
}

func (f fakeHealth) Health(ctx context.Context) (map[string]any, error) {
	return f.doc, f.err
}

func TestVersionsDiffer(t *testing.T) {
	tests := []struct {
		current, server string
		want            bool
	}{
		{"1.2.0", "1.2.0", false},
		{"v1.2.0", "1.2.0", false},
		{"1.2.0", "1.3.0", true},
		{"dev", "1.3.0", false},
		{"1.2.0", "dev", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, versionsDiffer(tt.current, tt.server), "%s vs %s", tt.current, tt.server)
	}
}

func TestCheckServer(t *testing.T) {
	differ, v, err := CheckServer(context.Background(), fakeHealth{doc: map[string]any{"version": "1.3.0"}}, "1.2.0")
	require.NoError(t, err)
	assert.True(t, differ)
	assert.Equal(t, "1.3.0", v)

	_, _, err = CheckServer(context.Background(), fakeHealth{doc: map[string]any{"status": "online"}}, "1.2.0")
	assert.Error(t, err)
}

func TestPrintNotification(t *testing.T) {
	var buf bytes.Buffer
	PrintNotification(context.Background(), &buf, fakeHealth{doc: map[string]any{"version": "1.3.0"}}, "1.2.0")
	assert.Contains(t, buf.String(), "Server runs 1.3.0")

	buf.Reset()
	PrintNotification(context.Background(), &buf, fakeHealth{err: errors.New("offline")}, "1.2.0")
	assert.Empty(t, buf.String())
}
