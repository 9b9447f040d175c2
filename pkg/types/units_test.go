package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestByteRate_String(t *testing.T) {
	assert.Equal(t, "0.0 /s", ByteRate(0).String())
	assert.Equal(t, "500.0 /s", ByteRate(500).String())
	assert.Equal(t, "2.0k/s", ByteRate(2048).String())
	assert.Equal(t, "10.0M/s", ByteRate(10<<20).String())
	assert.Equal(t, "1.5G/s", ByteRate(1.5*(1<<30)).String())
}

func TestPercent_String(t *testing.T) {
	assert.Equal(t, "0.0%", Percent(0).String())
	assert.Equal(t, "12.3%", Percent(12.34).String())
	assert.Equal(t, "250.0%", Percent(250).String())
}

func TestNanoseconds(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{3 * time.Hour, "3.0h"},
		{36 * time.Hour, "1.5d"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			n := Nanoseconds(tc.in)
			assert.Equal(t, tc.want, n.String())
			assert.Equal(t, tc.in, n.Duration())
		})
	}
}
