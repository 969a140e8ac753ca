package adapter

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterOutputSink_WriteLine(t *testing.T) {
	var buf bytes.Buffer

	sink := NewWriterOutputSink(&buf)
	sink.WriteLine("//pkg:calc_test", Stdout, "PASS: TestAdd")
	sink.WriteLine("//pkg:calc_test", Stderr, "warning")

	assert.Equal(t, "[//pkg:calc_test] PASS: TestAdd\n[//pkg:calc_test !] warning\n", buf.String())
}

func TestWriterOutputSink_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer

	sink := NewWriterOutputSink(&buf)

	var wg sync.WaitGroup

	for _, label := range []string{"//a:a_test", "//b:b_test", "//c:c_test"} {
		wg.Add(1)

		go func(label string) {
			defer wg.Done()

			for i := 0; i < 100; i++ {
				sink.WriteLine(label, Stdout, "line from "+label)
			}
		}(label)
	}

	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 300)

	for _, line := range lines {
		label := strings.TrimPrefix(strings.SplitN(line, "]", 2)[0], "[")
		assert.Equal(t, "["+label+"] line from "+label, line)
	}
}

func TestNewWriterOutputSink_NilWriter(t *testing.T) {
	sink := NewWriterOutputSink(nil)

	assert.NotPanics(t, func() {
		sink.WriteLine("//pkg:calc_test", Stdout, "discarded")
	})
}
