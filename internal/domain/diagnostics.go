package domain

import "time"

// DiagnosticStatus is the outcome of one environment check.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusWarn DiagnosticStatus = "warn"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one check result. Optional checks degrade to warn.
type DiagnosticItem struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Status   DiagnosticStatus `json:"status"`
	Message  string           `json:"message"`
	Hint     string           `json:"hint,omitempty"`
	Optional bool             `json:"optional,omitempty"`
}

// DiagnosticReport is served by the health endpoint and logged at startup.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Warnings    int              `json:"warnings"`
	Items       []DiagnosticItem `json:"items"`
}

// WithStatus returns the items that ended in status.
func (r DiagnosticReport) WithStatus(status DiagnosticStatus) []DiagnosticItem {
	var out []DiagnosticItem
	for _, item := range r.Items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out
}
