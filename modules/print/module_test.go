package print

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/modrun/internal/registry"
)

func TestPrint_ReturnsArgumentAndLogs(t *testing.T) {
	var buf bytes.Buffer
	m := &Module{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	in := cty.ObjectVal(map[string]cty.Value{"a": cty.StringVal("b")})
	out, err := m.Func().Call([]cty.Value{in})
	require.NoError(t, err)
	assert.True(t, in.RawEquals(out))
	assert.Contains(t, buf.String(), `value="{\"a\":\"b\"}"`)
}

func TestPrint_Null(t *testing.T) {
	var buf bytes.Buffer
	m := &Module{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	out, err := m.Func().Call([]cty.Value{cty.NullVal(cty.String)})
	require.NoError(t, err)
	assert.True(t, out.IsNull())
	assert.Contains(t, buf.String(), "value=null")
}

func TestRegister(t *testing.T) {
	r := registry.New().Load(&Module{})
	assert.Contains(t, r.Functions(), "print")
}
