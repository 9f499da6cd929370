// mediadrop/extract/engine_test.go
package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want FailureKind
	}{
		{"ERROR: Sign in to confirm you're not a bot", FailureAuthRequired},
		{"ERROR: This video requires login required cookies", FailureAuthRequired},
		{"ERROR: please use --cookies for authentication", FailureAuthRequired},
		{"ERROR: Video unavailable", FailureUnavailable},
		{"ERROR: Private video", FailureUnavailable},
		{"ERROR: This clip has been removed by the uploader", FailureUnavailable},
		{"ERROR: Unsupported URL", FailureGeneric},
		{"connection reset by peer", FailureGeneric},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.msg), "message: %s", tc.msg)
	}
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindVideo.Valid())
	assert.True(t, KindAudio.Valid())
	assert.False(t, Kind("playlist").Valid())
	assert.False(t, Kind("").Valid())
}

func TestProgressLinePattern(t *testing.T) {
	m := progressLine.FindStringSubmatch("[download]  42.3% of 10.00MiB at 1.00MiB/s ETA 00:05")
	assert.NotNil(t, m)
	assert.Equal(t, "42.3", m[1])

	assert.Nil(t, progressLine.FindStringSubmatch("[youtube] abc: Downloading webpage"))
	assert.Nil(t, progressLine.FindStringSubmatch("[download] Destination: /tmp/x.mp4"))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "ERROR: boom", lastLine("WARNING: x\nERROR: boom\n\n"))
	assert.Equal(t, "no output", lastLine("   \n"))
}
