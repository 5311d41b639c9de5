// Package convert rewrites a staged FHIR JSON bundle as single-resource NDJSON
// for HealthLake bulk import.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"

	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

var (
	ErrNoEntry    = errors.New("bundle has no entry")
	ErrNoResource = errors.New("bundle entry[0] has no resource")
)

const (
	multiEntryExpr   = "entry.count() > 1"
	resourceTypeExpr = "entry[0].resource.resourceType"
)

// ObjectIO is the slice of the object store the converter reads and writes through.
type ObjectIO interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, content []byte) error
}

type Result struct {
	NDJSONKey    string
	ResourceType string
	Entries      int
}

type Converter struct {
	objects      ObjectIO
	log          *logger.Logger
	multiEntry   *fhirpath.Expression
	resourceType *fhirpath.Expression
}

func NewConverter(objects ObjectIO, log *logger.Logger) *Converter {
	c := &Converter{
		objects: objects,
		log:     log.With("component", "FormatConverter"),
	}
	c.multiEntry = c.compile(multiEntryExpr)
	c.resourceType = c.compile(resourceTypeExpr)
	return c
}

func (c *Converter) compile(expr string) *fhirpath.Expression {
	compiled, err := fhirpath.Compile(expr)
	if err != nil {
		c.log.Warn("fhirpath compile failed", "expr", expr, "err", err)
		return nil
	}
	return compiled
}

type bundle struct {
	Entry []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// Convert reads bucket/jsonKey, takes entry[0].resource and writes it as one
// NDJSON line to bucket/ndjsonKey. Nothing is written when the bundle has no
// usable first entry.
func (c *Converter) Convert(ctx context.Context, bucket, jsonKey, ndjsonKey string) (Result, error) {
	raw, err := c.objects.GetObject(ctx, bucket, jsonKey)
	if err != nil {
		return Result{}, fmt.Errorf("fetch bundle: %w", err)
	}

	line, res, err := c.toNDJSON(raw)
	if err != nil {
		return Result{}, fmt.Errorf("convert s3://%s/%s: %w", bucket, jsonKey, err)
	}

	if err := c.objects.PutObject(ctx, bucket, ndjsonKey, line); err != nil {
		return Result{}, fmt.Errorf("write ndjson: %w", err)
	}

	res.NDJSONKey = ndjsonKey
	c.log.Info("bundle converted", "bucket", bucket, "json_key", jsonKey, "ndjson_key", ndjsonKey, "resource_type", res.ResourceType)
	return res, nil
}

func (c *Converter) toNDJSON(raw []byte) ([]byte, Result, error) {
	var b bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, Result{}, fmt.Errorf("parse bundle: %w", err)
	}
	if len(b.Entry) == 0 {
		return nil, Result{}, ErrNoEntry
	}

	resource := bytes.TrimSpace(b.Entry[0].Resource)
	if len(resource) == 0 || bytes.Equal(resource, []byte("null")) {
		return nil, Result{}, ErrNoResource
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, resource); err != nil {
		return nil, Result{}, fmt.Errorf("compact resource: %w", err)
	}
	buf.WriteByte('\n')

	c.warnMultiEntry(raw, len(b.Entry))

	return buf.Bytes(), Result{ResourceType: c.firstResourceType(raw), Entries: len(b.Entry)}, nil
}

// firstResourceType reads entry[0].resource.resourceType. A resource without
// one converts anyway and reports an empty type.
func (c *Converter) firstResourceType(raw []byte) string {
	if c.resourceType == nil {
		return ""
	}
	result, err := c.resourceType.Evaluate(raw)
	if err != nil {
		c.log.Debug("fhirpath evaluate failed", "expr", resourceTypeExpr, "err", err)
		return ""
	}
	if len(result) != 1 {
		return ""
	}
	s, ok := result[0].(types.String)
	if !ok {
		return ""
	}
	return s.Value()
}

// warnMultiEntry logs when entries past the first are dropped. FHIRPath errors
// only cost the warning.
func (c *Converter) warnMultiEntry(raw []byte, entries int) {
	if c.multiEntry == nil {
		return
	}
	result, err := c.multiEntry.Evaluate(raw)
	if err != nil {
		c.log.Debug("fhirpath evaluate failed", "expr", multiEntryExpr, "err", err)
		return
	}
	if isTrue(result) {
		c.log.Warn("multi-entry bundle, only entry[0] converted", "entries", entries, "dropped", entries-1)
	}
}

func isTrue(result types.Collection) bool {
	if len(result) != 1 {
		return false
	}
	b, ok := result[0].(types.Boolean)
	return ok && b.Bool()
}
