package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_NoPlaceholders_Identity(t *testing.T) {
	ctx := New(nil)
	const template = "/pets/42"
	assert.Equal(t, template, ctx.Resolve(template))
}

func TestResolve_EmptyContext_Identity(t *testing.T) {
	ctx := New(nil)
	assert.Equal(t, "${unknown}", ctx.Resolve("${unknown}"))
}

func TestResolve_ExtractedValue(t *testing.T) {
	ctx := New(nil)
	ctx.AddExtracted(map[string]string{"id": "42"})

	require.Equal(t, "/pets/42", ctx.Resolve("/pets/${id}"))
}

func TestResolve_EnvValue(t *testing.T) {
	ctx := New(map[string]string{"HOST": "api.example.com"})
	assert.Equal(t, "https://api.example.com/v1", ctx.Resolve("https://${env.HOST}/v1"))
}

func TestResolve_UnknownPlaceholderLeftLiteral(t *testing.T) {
	ctx := New(nil)
	ctx.AddExtracted(map[string]string{"id": "42"})

	assert.Equal(t, `{"id": "42", "extra": "${missing}"}`, ctx.Resolve(`{"id": "${id}", "extra": "${missing}"}`))
}

func TestResolve_SingleLeftToRightPass_NoRecursiveExpansion(t *testing.T) {
	ctx := New(nil)
	// The substituted value itself contains a placeholder-looking string;
	// it must NOT be rescanned.
	ctx.AddExtracted(map[string]string{"a": "${b}", "b": "final"})

	assert.Equal(t, "${b}", ctx.Resolve("${a}"))
}

func TestAddExtracted_Merges(t *testing.T) {
	ctx := New(nil)
	ctx.AddExtracted(map[string]string{"a": "1"})
	ctx.AddExtracted(map[string]string{"b": "2"})

	snap := ctx.Snapshot()
	assert.Equal(t, "1", snap["a"])
	assert.Equal(t, "2", snap["b"])
}

func TestResolve_UnterminatedPlaceholder(t *testing.T) {
	ctx := New(nil)
	assert.Equal(t, "foo ${bar", ctx.Resolve("foo ${bar"))
}
