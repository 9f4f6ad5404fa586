package runtime

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdarais/cobble/internal/core"
)

func TestMultiplexerPolicies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		policy     core.OutputPolicy
		failed     bool
		wantOutput bool
	}{
		{name: "always success", policy: core.OutputAlways, failed: false, wantOutput: true},
		{name: "always failure", policy: core.OutputAlways, failed: true, wantOutput: true},
		{name: "never success", policy: core.OutputNever, failed: false, wantOutput: false},
		{name: "on_fail success", policy: core.OutputOnFail, failed: false, wantOutput: false},
		{name: "on_fail failure", policy: core.OutputOnFail, failed: true, wantOutput: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			m := NewMultiplexer(&stdout, &stderr)

			s := m.Streams(false)
			fmt.Fprintln(s.Stdout, "task says hi")
			m.Flush(s, tt.policy, core.OutputNever, tt.failed, false)

			if tt.wantOutput {
				assert.Contains(t, stdout.String(), "task says hi")
			} else {
				assert.Empty(t, stdout.String())
			}
		})
	}
}

func TestMultiplexerForceOverridesPolicy(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	m := NewMultiplexer(&stdout, &stderr)

	s := m.Streams(false)
	fmt.Fprintln(s.Stdout, "failing task output")
	// Failed tasks flush regardless of a never policy.
	m.Flush(s, core.OutputNever, core.OutputNever, true, true)
	assert.Contains(t, stdout.String(), "failing task output")
}

func TestMultiplexerFlushIsAtomic(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	m := NewMultiplexer(&stdout, &stderr)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Streams(false)
			for j := 0; j < 20; j++ {
				fmt.Fprintf(s.Stdout, "task%d line%d\n", i, j)
			}
			m.Flush(s, core.OutputAlways, core.OutputAlways, false, false)
		}()
	}
	wg.Wait()

	// Each task's 20 lines must land contiguously.
	lines := bytes.Split(bytes.TrimSpace(stdout.Bytes()), []byte("\n"))
	assert.Len(t, lines, workers*20)
	for i := 0; i < len(lines); i += 20 {
		prefix := lines[i][:5]
		for j := 1; j < 20; j++ {
			assert.Equal(t, string(prefix), string(lines[i+j][:5]))
		}
	}
}

func TestMultiplexerInteractiveBypass(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	m := NewMultiplexer(&stdout, &stderr)

	s := m.Streams(true)
	fmt.Fprintln(s.Stdout, "interactive output")
	// Interactive streams hit the terminal before any flush.
	assert.Contains(t, stdout.String(), "interactive output")
	m.Flush(s, core.OutputNever, core.OutputNever, false, false)
	assert.Contains(t, stdout.String(), "interactive output")
}

func TestMultiplexerDiscardsAfterFlush(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	m := NewMultiplexer(&stdout, &stderr)

	s := m.Streams(false)
	fmt.Fprintln(s.Stdout, "once")
	m.Flush(s, core.OutputAlways, core.OutputAlways, false, false)
	m.Flush(s, core.OutputAlways, core.OutputAlways, false, false)
	assert.Equal(t, "once\n", stdout.String())
}
