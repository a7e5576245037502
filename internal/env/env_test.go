package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeOrderAndExpansion(t *testing.T) {
	e := New()
	e.base = Var{"HOME": "/home/m", "A": "base"}
	e.Set("A", "global").Set("POOL", "${HOME}/pool").Set("", "ignored")

	out := e.Merge([]string{"A=task", "BAD", "=x", "K=${MISSING}-${A}"})
	assert.Equal(t, []string{
		"A=task",
		"HOME=/home/m",
		"K=${MISSING}-task",
		"POOL=/home/m/pool",
	}, out)
}

func TestMergeWithoutBase(t *testing.T) {
	out := New().Merge([]string{"X=1", "X=2"})
	assert.Equal(t, []string{"X=2"}, out)
}

func TestFromOS(t *testing.T) {
	t.Setenv("MINERD_ENV_TEST", "yes")
	out := New().FromOS().Merge(nil)
	assert.Contains(t, out, "MINERD_ENV_TEST=yes")
}

func TestExpandUnterminated(t *testing.T) {
	assert.Equal(t, "a${B", expand("a${B", Var{"B": "x"}))
	assert.Equal(t, "xx", expand("${B}${B}", Var{"B": "x"}))
}

// FuzzMerge checks Merge never emits malformed pairs.
func FuzzMerge(f *testing.F) {
	f.Add("A=1\nB=${A}-x", "C=${B}-y")
	f.Add("FOO=bar", "FOO=${FOO}")
	f.Add("X=$Y", "Y=${X")

	f.Fuzz(func(t *testing.T, global, per string) {
		e := New()
		for _, kv := range strings.Split(global, "\n") {
			if k, v, ok := strings.Cut(kv, "="); ok {
				e.Set(k, v)
			}
		}
		for _, kv := range e.Merge(strings.Split(per, "\n")) {
			if !strings.Contains(kv, "=") || strings.HasPrefix(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
		}
	})
}
