package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

// Invoke dispatches an inbound operation by name with raw JSON arguments.
func (o *Orchestrator) Invoke(ctx context.Context, operation string, args json.RawMessage) Response {
	switch operation {
	case OpCreateDataStore:
		var req validation.CreateDataStoreRequest
		if r, decoded := decode(args, &req); !decoded {
			return r
		}
		return o.CreateDataStore(ctx, req)
	case OpImportFHIR:
		var req validation.ImportFHIRRequest
		if r, decoded := decode(args, &req); !decoded {
			return r
		}
		return o.ImportFHIR(ctx, req)
	case OpDeleteDatastore:
		var req validation.DeleteDatastoreRequest
		if r, decoded := decode(args, &req); !decoded {
			return r
		}
		return o.DeleteDatastore(ctx, req)
	case OpJSONToNDJSON:
		var req validation.JSONToNDJSONRequest
		if r, decoded := decode(args, &req); !decoded {
			return r
		}
		return o.JSONToNDJSON(ctx, req)
	case OpDeleteBucket:
		var req validation.DeleteBucketRequest
		if r, decoded := decode(args, &req); !decoded {
			return r
		}
		return o.DeleteBucket(ctx, req)
	default:
		return fail(KindValidation, "unknown operation %q", operation)
	}
}

// Operations lists the names Invoke accepts.
func Operations() []string {
	return []string{OpCreateDataStore, OpImportFHIR, OpDeleteDatastore, OpJSONToNDJSON, OpDeleteBucket}
}

// RecordID pulls the projection record id out of raw arguments, if the operation has one.
func RecordID(operation string, args json.RawMessage) string {
	var keys struct {
		ID             string `json:"id"`
		HealthRecordID string `json:"health_record_id"`
	}
	_ = json.Unmarshal(args, &keys)
	if operation == OpDeleteDatastore {
		return keys.HealthRecordID
	}
	return keys.ID
}

func decode(args json.RawMessage, out any) (Response, bool) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, out); err != nil {
		return fail(KindValidation, "invalid arguments: %v", err), false
	}
	return Response{}, true
}
