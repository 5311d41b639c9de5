package lifecycle

import (
	"context"

	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

// DeleteBucket empties and removes a staging bucket that no record tracks.
// A bucket that is already gone counts as deleted.
func (o *Orchestrator) DeleteBucket(ctx context.Context, req validation.DeleteBucketRequest) (resp Response) {
	ctx, done := o.begin(ctx, OpDeleteBucket, req.BucketName)
	defer func() { done(&resp) }()

	if r, valid := o.checkRequest(req); !valid {
		return r
	}

	if err := o.objects.DeleteAllObjectsAndBucket(ctx, req.BucketName); err != nil {
		return fail(KindUpstream, "Error deleting bucket: %v", err)
	}
	return ok("Bucket %s deleted successfully", req.BucketName)
}
