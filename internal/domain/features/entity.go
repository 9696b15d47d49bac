package features

import "time"

// Feature is one generated Gherkin specification unit. It belongs to
// exactly one scan; the title is the lookup handle for the mutation
// tools and is unique within a scan.
type Feature struct {
	ID          string    `json:"id"`
	ScanID      string    `json:"scan_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FilePath    string    `json:"file_path"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// Draft is a model-proposed feature before it gets an identity.
// All four fields are required; the synthesizer rejects anything less.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FilePath    string `json:"file_path"`
	Content     string `json:"content"`
}
