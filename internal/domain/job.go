package domain

import "strings"

// NoDescription is substituted whenever a posting yields no usable description.
const NoDescription = "لا يوجد وصف متاح لهذه الوظيفة."

// JobCandidate is a listing entry as discovered by a source, before enrichment.
type JobCandidate struct {
	Identity    string
	Title       string
	Company     string
	Link        string
	ImageURL    string
	Location    string
	PostedDate  string
	Deadline    string
	Category    string
	Description string // listing snippet, may be empty
	Source      string
}

// ProcessedJob is a fully enriched posting ready for summarization.
type ProcessedJob struct {
	Identity         string
	Title            string
	Company          string
	Link             string
	Description      string
	Location         string
	PostedDate       string
	Deadline         string
	Category         string
	HowToApply       string
	ApplicationLinks []string
	ImageURL         string
	Source           string
}

// NewProcessedJob seeds a ProcessedJob from the candidate and guarantees a
// non-empty description.
func NewProcessedJob(c JobCandidate, description string) ProcessedJob {
	return ProcessedJob{
		Identity:    c.Identity,
		Title:       c.Title,
		Company:     c.Company,
		Link:        c.Link,
		Description: EnsureDescription(description),
		Location:    c.Location,
		PostedDate:  c.PostedDate,
		Deadline:    c.Deadline,
		Category:    c.Category,
		ImageURL:    c.ImageURL,
		Source:      c.Source,
	}
}

func EnsureDescription(s string) string {
	if strings.TrimSpace(s) == "" {
		return NoDescription
	}
	return s
}

// HasDescription reports whether the job carries a real description.
func (p ProcessedJob) HasDescription() bool {
	return strings.TrimSpace(p.Description) != "" && p.Description != NoDescription
}
