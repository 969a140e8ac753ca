package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "tessel.dev/pkg/tessel/internal/model"
)

func TestLocalQueryAdapter_Query(t *testing.T) {
	tool := fakeTool(t, `echo "$1 $2 $3"
echo "$4"
`)
	adapter := NewLocalQueryAdapter(tool)

	out, err := adapter.Query(context.Background(), m.Path(t.TempDir()), "tests(//pkg:suite)", OutputLabel)

	require.NoError(t, err)
	assert.Equal(t, "query --output=label --keep_going\ntests(//pkg:suite)\n", out)
}

func TestLocalQueryAdapter_PartialResults(t *testing.T) {
	tool := fakeTool(t, `echo "go_test rule //pkg:calc_test"
echo "ERROR: broken package" >&2
exit 3
`)
	adapter := NewLocalQueryAdapter(tool)

	out, err := adapter.Query(context.Background(), m.Path(t.TempDir()), "//...", OutputLabelKind)

	require.NoError(t, err)
	assert.Equal(t, "go_test rule //pkg:calc_test\n", out)
}

func TestLocalQueryAdapter_Failure(t *testing.T) {
	tool := fakeTool(t, `echo "ERROR: no such package" >&2
exit 7
`)
	adapter := NewLocalQueryAdapter(tool)

	_, err := adapter.Query(context.Background(), m.Path(t.TempDir()), "//missing/...", OutputLabelKind)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such package")
}

func TestLocalQueryAdapter_PartialWithoutOutputFails(t *testing.T) {
	tool := fakeTool(t, `exit 3`)
	adapter := NewLocalQueryAdapter(tool)

	_, err := adapter.Query(context.Background(), m.Path(t.TempDir()), "//...", OutputLabelKind)

	require.Error(t, err)
}
