package util

import (
	"strings"

	"jobrelay-engine/internal/domain"
)

// FillFromText completes fields recoverable from the description itself:
// labelled location/deadline lines and contact details.
func FillFromText(job *domain.ProcessedJob) {
	job.Description = domain.EnsureDescription(job.Description)
	if !job.HasDescription() {
		return
	}
	if job.Location == "" {
		job.Location = NormalizeLocation(ExtractLabeled(job.Description, LocationLabels))
	}
	if job.Deadline == "" {
		job.Deadline = ExtractLabeled(job.Description, DeadlineLabels)
	}
	if len(job.ApplicationLinks) == 0 {
		job.ApplicationLinks = ExtractContacts(strings.Join([]string{job.Description, job.HowToApply}, "\n"))
	}
}
