package memprobe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fakeProber(procs []procInfo, err error) *ProcProber {
	return &ProcProber{
		listProcesses: func(ctx context.Context) ([]procInfo, error) {
			return procs, err
		},
	}
}

func TestMemoryByTTY(t *testing.T) {
	p := fakeProber([]procInfo{
		{Terminal: "ttys001", RSS: 100},
		{Terminal: "ttys001", RSS: 50},
		{Terminal: "ttys002", RSS: 200},
		{Terminal: "ttys009", RSS: 999},
	}, nil)

	got := p.MemoryByTTY(context.Background(), []string{"/dev/ttys001", "/dev/ttys002"})
	assert.Equal(t, map[string]uint64{
		"/dev/ttys001": 150,
		"/dev/ttys002": 200,
	}, got)
}

func TestMemoryByTTYMissingIsSilent(t *testing.T) {
	p := fakeProber([]procInfo{{Terminal: "ttys001", RSS: 100}}, nil)

	got := p.MemoryByTTY(context.Background(), []string{"/dev/ttys404"})
	assert.Empty(t, got)
}

func TestMemoryByTTYErrorDegrades(t *testing.T) {
	p := fakeProber(nil, errors.New("permission denied"))

	got := p.MemoryByTTY(context.Background(), []string{"/dev/ttys001"})
	assert.Empty(t, got)
}

func TestMemoryByTTYEmptyInput(t *testing.T) {
	called := false
	p := &ProcProber{
		listProcesses: func(ctx context.Context) ([]procInfo, error) {
			called = true
			return nil, nil
		},
	}

	got := p.MemoryByTTY(context.Background(), nil)
	assert.Empty(t, got)
	assert.False(t, called, "should not walk the process table for zero ttys")
}

func TestMemoryByTTYPrefixNormalization(t *testing.T) {
	// Some platforms report the full /dev path.
	p := fakeProber([]procInfo{{Terminal: "/dev/pts/3", RSS: 77}}, nil)

	got := p.MemoryByTTY(context.Background(), []string{"/dev/pts/3"})
	assert.Equal(t, uint64(77), got["/dev/pts/3"])
}
