package services

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOption(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "👍", want: "👍"},
		{in: "  ❤️ ", want: "❤️"},
		{in: "e\u0301", want: "\u00e9"}, // decomposed é folds to NFC
		{in: "\U0001F469\u200D\U0001F4BB", want: "\U0001F469\u200D\U0001F4BB"}, // ZWJ sequences are allowed
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "a.b", wantErr: true},
		{in: "$inc", wantErr: true},
		{in: "bad\x00", wantErr: true},
		{in: "tab\tkey", wantErr: true},
		{in: strings.Repeat("x", MaxOptionRunes), want: strings.Repeat("x", MaxOptionRunes)},
		{in: strings.Repeat("x", MaxOptionRunes+1), wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizeOption(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrInvalidOption, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestNormalizeScope(t *testing.T) {
	d, m, err := normalizeScope(" example.com ", " m1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", d)
	assert.Equal(t, "m1", m)

	_, _, err = normalizeScope("", "m1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = normalizeScope("d", strings.Repeat("m", MaxIDRunes+1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestKeyedMutex_SerializesPerKeyAndCleansUp(t *testing.T) {
	var km keyedMutex
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("k")
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, km.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	var km keyedMutex
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
	unlockA()
}

func TestClipAndNormalizeTitle(t *testing.T) {
	assert.Equal(t, "a b c", normalizeTitle("  a \n b\t\tc "))
	assert.Equal(t, "héé", clip("hééllo", 3))
	assert.Equal(t, "short", clip("short", 0))
}
