package datastores

import "time"

// Record is the projection row the UI observes for one lifecycle instance.
type Record struct {
	ID                string    `dynamodbav:"id" json:"id"` // PK
	Name              string    `dynamodbav:"name" json:"name"`
	PatientICN        string    `dynamodbav:"patient_icn" json:"patient_icn"`
	S3Input           string    `dynamodbav:"s3_input" json:"s3_input"`
	S3Output          string    `dynamodbav:"s3_output,omitempty" json:"s3_output,omitempty"`
	DatastoreID       string    `dynamodbav:"datastore_id,omitempty" json:"datastore_id,omitempty"` // set once
	Status            Status    `dynamodbav:"status" json:"status"`
	StatusDescription string    `dynamodbav:"status_description" json:"status_description"`
	CreatedAt         time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt         time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// OutputURI derives the import output location from the input location.
func OutputURI(s3Input string) string {
	return s3Input + "_output"
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name              *string
	S3Output          *string
	DatastoreID       *string
	Status            *Status
	StatusDescription *string
}

// Transition builds a patch that moves the record to status with a new description.
func Transition(status Status, description string) Patch {
	return Patch{Status: &status, StatusDescription: &description}
}

func (p Patch) WithDatastoreID(id string) Patch {
	p.DatastoreID = &id
	return p
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.S3Output == nil && p.DatastoreID == nil && p.Status == nil && p.StatusDescription == nil
}

// Check validates the patch against the current record.
func (p Patch) Check(current *Record) error {
	if current == nil {
		return ErrNotFound
	}
	if p.Status != nil && !current.Status.CanTransitionTo(*p.Status) {
		return illegal(current.Status, *p.Status)
	}
	if p.DatastoreID != nil && current.DatastoreID != "" && current.DatastoreID != *p.DatastoreID {
		return ErrDatastoreIDSet
	}
	return nil
}

func (p Patch) apply(r *Record, now time.Time) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.S3Output != nil {
		r.S3Output = *p.S3Output
	}
	if p.DatastoreID != nil {
		r.DatastoreID = *p.DatastoreID
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.StatusDescription != nil {
		r.StatusDescription = *p.StatusDescription
	}
	r.UpdatedAt = now
}
