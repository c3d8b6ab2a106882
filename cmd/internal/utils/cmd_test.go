package utils

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestExecuteCommandToWriter(t *testing.T) {
	var (
		ctx = context.Background()
		e   = NewExecutor(zaptest.NewLogger(t).Sugar())
		out bytes.Buffer
	)

	err := e.ExecuteCommandToWriter(ctx, &out, "sh", []string{"GREETING=hello"}, "-c", "echo $GREETING; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())

	err = e.ExecuteCommandToWriter(ctx, &out, "sh", nil, "-c", "echo broken >&2; exit 3")
	require.ErrorContains(t, err, "broken")

	err = e.ExecuteCommandToWriter(ctx, &out, "surely-not-an-installed-command", nil)
	require.Error(t, err)
}

func TestTablePrinter(t *testing.T) {
	var out bytes.Buffer

	err := NewTablePrinterTo(&out).Print([]string{"Tier", "Backup"}, [][]string{{"daily", "2024-01-02_020000"}})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "2024-01-02_020000")
}
