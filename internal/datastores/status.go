package datastores

import (
	"fmt"
	"strings"
)

// Status is the lifecycle phase of a datastore record.
type Status string

const (
	StatusInitialized     Status = "INITIALIZED"
	StatusCreating        Status = "CREATING"
	StatusCreateCompleted Status = "CREATE_COMPLETED"
	StatusCreatingFailed  Status = "CREATING_FAILED"
	StatusImporting       Status = "IMPORTING"
	StatusImportCompleted Status = "IMPORT_COMPLETED"
	StatusImportFailed    Status = "IMPORT_FAILED"
	StatusDeleting        Status = "DELETING"
	StatusDeleteCompleted Status = "DELETE_COMPLETED"
	StatusDeleteFailed    Status = "DELETE_FAILED"
)

type Phase string

const (
	PhaseCreate Phase = "create"
	PhaseImport Phase = "import"
	PhaseDelete Phase = "delete"
)

var allStatuses = []Status{
	StatusInitialized,
	StatusCreating,
	StatusCreateCompleted,
	StatusCreatingFailed,
	StatusImporting,
	StatusImportCompleted,
	StatusImportFailed,
	StatusDeleting,
	StatusDeleteCompleted,
	StatusDeleteFailed,
}

// transitions lists the legal next statuses. Polling statuses may repeat so
// every tick can rewrite its description. CREATING_FAILED repeats so a retried
// create that is rejected again records the newer error.
var transitions = map[Status][]Status{
	StatusInitialized:     {StatusCreating, StatusCreatingFailed, StatusDeleting},
	StatusCreating:        {StatusCreating, StatusCreateCompleted, StatusCreatingFailed, StatusDeleting},
	StatusCreateCompleted: {StatusImporting, StatusDeleting},
	StatusCreatingFailed:  {StatusCreating, StatusCreatingFailed, StatusDeleting},
	StatusImporting:       {StatusImporting, StatusImportCompleted, StatusImportFailed, StatusDeleting},
	StatusImportCompleted: {StatusImporting, StatusDeleting},
	StatusImportFailed:    {StatusImporting, StatusDeleting},
	StatusDeleting:        {StatusDeleting, StatusDeleteCompleted, StatusDeleteFailed},
	StatusDeleteFailed:    {StatusDeleting},
	StatusDeleteCompleted: {},
}

func Parse(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// CanTransitionTo checks the transition table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedFrom returns every status that may move to next, in lifecycle order.
func AllowedFrom(next Status) []Status {
	var from []Status
	for _, s := range allStatuses {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

func (s Status) Phase() Phase {
	switch s {
	case StatusImporting, StatusImportCompleted, StatusImportFailed:
		return PhaseImport
	case StatusDeleting, StatusDeleteCompleted, StatusDeleteFailed:
		return PhaseDelete
	default:
		return PhaseCreate
	}
}

// Terminal reports whether the phase has settled (completed or failed).
func (s Status) Terminal() bool {
	switch s {
	case StatusCreateCompleted, StatusCreatingFailed,
		StatusImportCompleted, StatusImportFailed,
		StatusDeleteCompleted, StatusDeleteFailed:
		return true
	}
	return false
}

func (s Status) Failed() bool {
	return s == StatusCreatingFailed || s == StatusImportFailed || s == StatusDeleteFailed
}
