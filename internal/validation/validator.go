package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator. Field names in errors use the json tag.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("s3uri", s3URI)

	// converting a key onto itself would overwrite the source bundle
	v.RegisterStructValidation(jsonToNDJSONStructValidation, JSONToNDJSONRequest{})

	return v
}

// s3URI accepts s3://bucket[/key].
func s3URI(fl validatorv10.FieldLevel) bool {
	rest, ok := strings.CutPrefix(fl.Field().String(), "s3://")
	if !ok {
		return false
	}
	bucket, _, _ := strings.Cut(rest, "/")
	return bucket != ""
}

func jsonToNDJSONStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(JSONToNDJSONRequest)
	if req.JSONFileKey != "" && req.JSONFileKey == req.NDJSONFileKey {
		sl.ReportError(req.NDJSONFileKey, "ndjson_file_key", "NDJSONFileKey", "nefield", "json_file_key")
	}
}
