package validation

// CreateDataStoreRequest is the payload for createDataStore / POST /datastores.
type CreateDataStoreRequest struct {
	ID         string `json:"id" validate:"required"`             // record key, usually the staged object's locator
	Name       string `json:"name" validate:"required"`           // control-plane datastore name
	S3Input    string `json:"s3_input" validate:"required,s3uri"` // staged NDJSON/JSON source
	PatientICN string `json:"patient_icn" validate:"required"`    // subject patient
}

// ImportFHIRRequest is the payload for importFHIR.
type ImportFHIRRequest struct {
	ID string `json:"id" validate:"required"`
}

// DeleteDatastoreRequest is the payload for deleteDatastore.
type DeleteDatastoreRequest struct {
	HealthRecordID string `json:"health_record_id" validate:"required"`
}

// JSONToNDJSONRequest is the payload for jsonToNdjson / POST /conversions.
type JSONToNDJSONRequest struct {
	BucketName    string `json:"bucket_name" validate:"required"`
	JSONFileKey   string `json:"json_file_key" validate:"required"`
	NDJSONFileKey string `json:"ndjson_file_key" validate:"required"`
}

// DeleteBucketRequest is the payload for deleteBucket / POST /buckets/delete.
type DeleteBucketRequest struct {
	BucketName string `json:"bucket_name" validate:"required"`
}
