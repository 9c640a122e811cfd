package cmd

import (
	"github.com/felixgeelhaar/sprintctl/internal/errors"
)

// Result is the structured envelope every command emits for json and yaml
// output. Error is absent on success, Data on failure.
type Result struct {
	OK    bool        `json:"ok" yaml:"ok"`
	Data  interface{} `json:"data,omitempty" yaml:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty" yaml:"error,omitempty"`
}

// ErrorInfo is the machine-readable rendering of a failed command
type ErrorInfo struct {
	Code        string   `json:"code,omitempty" yaml:"code,omitempty"`
	Message     string   `json:"message" yaml:"message"`
	Details     []string `json:"details,omitempty" yaml:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

func success(data interface{}) *Result {
	return &Result{OK: true, Data: data}
}

func failure(err error) *Result {
	info := &ErrorInfo{Message: err.Error()}

	var se *errors.SprintError
	if errors.AsSprintError(err, &se) {
		info.Code = string(se.Code)
		info.Message = se.Message
		if se.Cause != nil {
			info.Message += ": " + se.Cause.Error()
		}
		info.Details = se.Details
		info.Suggestions = se.Suggestions
	}

	return &Result{OK: false, Error: info}
}
