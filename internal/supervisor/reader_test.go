package supervisor

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) (lines []string, skipped int) {
	t.Helper()
	err := scanLines(strings.NewReader(input),
		func(l string) { lines = append(lines, l) },
		func() { skipped++ })
	require.NoError(t, err)
	return lines, skipped
}

func TestScanLinesSplitsAndTrims(t *testing.T) {
	lines, skipped := collect(t, "one\r\ntwo\n\nthree")
	assert.Equal(t, []string{"one", "two", "", "three"}, lines)
	assert.Zero(t, skipped)
}

func TestScanLinesSkipsInvalidUTF8(t *testing.T) {
	lines, skipped := collect(t, "before\n\xff\xfe bad\nafter\n")
	assert.Equal(t, []string{"before", "after"}, lines)
	assert.Equal(t, 1, skipped)
}

func TestScanLinesSkipsOverlongLine(t *testing.T) {
	long := strings.Repeat("x", MaxLineBytes*2+17)
	lines, skipped := collect(t, "a\n"+long+"\nb\n")
	assert.Equal(t, []string{"a", "b"}, lines)
	assert.Equal(t, 1, skipped)
}

func TestScanLinesOverlongAtEOF(t *testing.T) {
	lines, skipped := collect(t, "a\n"+strings.Repeat("y", MaxLineBytes+1))
	assert.Equal(t, []string{"a"}, lines)
	assert.Equal(t, 1, skipped)
}

func TestScanLinesReportsReadError(t *testing.T) {
	boom := errors.New("boom")
	err := scanLines(iotest.ErrReader(boom), func(string) {}, func() {})
	assert.ErrorIs(t, err, boom)
}
