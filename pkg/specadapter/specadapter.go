// Package specadapter implements ports.OperationSource, the thin adapter
// through which the orchestration core sees the operations an OpenAPI 3.x
// document declares. Full spec parsing stays behind the port; only the
// method+path inventory the coverage calculator needs is extracted here.
package specadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/pb33f/libopenapi"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
	"gopkg.in/yaml.v3"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
)

// operationMethods enumerates the HTTP verbs libopenapi's high-level
// PathItem model exposes as direct fields.
var operationMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "TRACE"}

// Adapter implements ports.OperationSource over an OpenAPI 3.x document.
type Adapter struct{}

// New builds an Adapter.
func New() *Adapter { return &Adapter{} }

// Operations parses specContent as OpenAPI 3.x (accepting either JSON or
// YAML, since libopenapi's loader handles both transparently) and returns
// every declared method+path pair as a models.Operation, for the coverage
// calculator to compare against scenario-touched endpoints.
func (a *Adapter) Operations(ctx context.Context, specContent []byte, format ports.SpecFormat) ([]models.Operation, error) {
	document, err := libopenapi.NewDocument(specContent)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}

	model, err := document.BuildV3Model()
	if err != nil {
		return nil, fmt.Errorf("build openapi v3 model: %w", err)
	}
	if model == nil {
		return nil, fmt.Errorf("build openapi v3 model: no model produced")
	}

	var ops []models.Operation
	for pair := model.Model.Paths.PathItems.First(); pair != nil; pair = pair.Next() {
		path := pair.Key()
		item := pair.Value()

		for _, method := range operationMethods {
			op := operationFor(item, method)
			if op == nil {
				continue
			}
			opID := op.OperationId
			if opID == "" {
				opID = fmt.Sprintf("%s %s", method, path)
			}
			ops = append(ops, models.Operation{
				OperationID: opID,
				Method:      method,
				Path:        path,
			})
		}
	}
	return ops, nil
}

func operationFor(item *v3.PathItem, method string) *v3.Operation {
	switch method {
	case "GET":
		return item.Get
	case "POST":
		return item.Post
	case "PUT":
		return item.Put
	case "DELETE":
		return item.Delete
	case "PATCH":
		return item.Patch
	case "HEAD":
		return item.Head
	case "OPTIONS":
		return item.Options
	case "TRACE":
		return item.Trace
	default:
		return nil
	}
}

// DetectFormat classifies raw spec content as JSON or YAML, so that
// fetched and inline specs take the same parsing path.
func DetectFormat(content []byte) ports.SpecFormat {
	s := string(content)
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") {
		return ports.SpecFormatJSON
	}
	var probe map[string]any
	if err := yaml.Unmarshal(content, &probe); err == nil {
		return ports.SpecFormatYAML
	}
	return ports.SpecFormatJSON
}
