package specadapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
)

const petsSpecYAML = `
openapi: 3.0.3
info:
  title: pets API
  version: "1.0"
paths:
  /pets:
    get:
      operationId: listPets
      responses:
        "200":
          description: ok
    post:
      responses:
        "201":
          description: created
  /pets/{id}:
    get:
      operationId: getPet
      responses:
        "200":
          description: ok
    delete:
      responses:
        "204":
          description: no content
`

func TestAdapter_Operations_ExtractsEveryMethodPathPair(t *testing.T) {
	a := New()
	ops, err := a.Operations(context.Background(), []byte(petsSpecYAML), ports.SpecFormatYAML)
	require.NoError(t, err)
	require.Len(t, ops, 4)

	byKey := make(map[string]string, len(ops))
	for _, op := range ops {
		byKey[op.Method+" "+op.Path] = op.OperationID
	}

	assert.Equal(t, "listPets", byKey["GET /pets"])
	assert.Equal(t, "getPet", byKey["GET /pets/{id}"])
	// operationId omitted in the source doc -> fallback to "METHOD path".
	assert.Equal(t, "POST /pets", byKey["POST /pets"])
	assert.Equal(t, "DELETE /pets/{id}", byKey["DELETE /pets/{id}"])
}

func TestAdapter_Operations_InvalidDocumentReturnsError(t *testing.T) {
	a := New()
	_, err := a.Operations(context.Background(), []byte("not: [valid, openapi"), ports.SpecFormatYAML)
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, ports.SpecFormatJSON, DetectFormat([]byte(`{"openapi":"3.0.3"}`)))
	assert.Equal(t, ports.SpecFormatYAML, DetectFormat([]byte("openapi: 3.0.3\ninfo:\n  title: x")))
}
