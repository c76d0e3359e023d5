package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		wantBare bool
		wantErr  bool
	}{
		{in: "R58M123ABC", want: "R58M123ABC"},
		{in: "emulator-5554", want: "emulator-5554"},
		{in: " 10.0.0.7 ", want: "10.0.0.7:5555", wantBare: true},
		{in: "10.0.0.7:5556", want: "10.0.0.7:5556"},
		{in: "adb-R58M._adb-tls-connect._tcp.", want: "adb-R58M._adb-tls-connect._tcp."},
		{in: "", wantErr: true},
		{in: "abc && reboot", wantErr: true},
		{in: "abc`id`", wantErr: true},
		{in: strings.Repeat("a", 257), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, bare, err := NormalizeTarget(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTarget)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantBare, bare)
		})
	}
}

func TestClassifyExit_EmptyStderr(t *testing.T) {
	assert.Equal(t, ErrShellExited, classifyExit("  \n"))
}
