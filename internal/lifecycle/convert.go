package lifecycle

import (
	"context"
	"errors"

	"github.com/stevenmeyer142/pintler-va-app/internal/convert"
	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

// JSONToNDJSON converts a staged bundle into the single-line import file.
func (o *Orchestrator) JSONToNDJSON(ctx context.Context, req validation.JSONToNDJSONRequest) (resp Response) {
	ctx, done := o.begin(ctx, OpJSONToNDJSON, req.BucketName+"/"+req.JSONFileKey)
	defer func() { done(&resp) }()

	if r, valid := o.checkRequest(req); !valid {
		return r
	}

	res, err := o.converter.Convert(ctx, req.BucketName, req.JSONFileKey, req.NDJSONFileKey)
	if err != nil {
		if errors.Is(err, convert.ErrNoEntry) || errors.Is(err, convert.ErrNoResource) {
			return fail(KindIntegrity, "error converting JSON to NDJSON: %v", err)
		}
		return fail(KindUpstream, "error converting JSON to NDJSON: %v", err)
	}

	resp = ok("Converted %s resource to NDJSON", res.ResourceType)
	resp.NDJSONFileKey = res.NDJSONKey
	return resp
}
