package model

import "net/http"

// ProcessingResult is returned by ProcessDocument.
type ProcessingResult struct {
	Success          bool              `json:"success"`
	ValidationStatus ValidationStatus  `json:"validationStatus,omitempty"`
	ValidationFlags  []ValidationFlag  `json:"validationFlags,omitempty"`
	TenantCandidates []TenantCandidate `json:"tenantCandidates,omitempty"`
	IsMultiTenant    bool              `json:"isMultiTenant,omitempty"`
	TenantCorrection *TenantCorrection `json:"tenantCorrection,omitempty"`
	RecordsCreated   bool              `json:"recordsCreated"`
	Error            string            `json:"error,omitempty"`
	StatusCode       int               `json:"statusCode,omitempty"`
}

// NotFoundResult is the result for a missing document.
func NotFoundResult(msg string) ProcessingResult {
	return ProcessingResult{Error: msg, StatusCode: http.StatusNotFound}
}

// FailedResult is the result for a run that ended in FAILED.
func FailedResult(msg string, status int) ProcessingResult {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return ProcessingResult{Error: msg, StatusCode: status}
}
