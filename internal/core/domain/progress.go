package domain

// ProgressEvent is a one-way notification from the pipeline to external
// observers. Emission must never block the pipeline.
type ProgressEvent struct {
	DocumentID     string `json:"document_id"`
	Stage          Stage  `json:"stage"`
	UnitsCompleted int    `json:"units_completed"`
	UnitsTotal     int    `json:"units_total"`
	LastError      string `json:"last_error,omitempty"`
}

// PipelineStatus is the read model for one document's pipeline state,
// assembled from the document row and its checkpoint.
type PipelineStatus struct {
	Document        SourceDocument `json:"document"`
	Stage           Stage          `json:"stage"`
	Paused          bool           `json:"paused"`
	PagesRendered   int            `json:"pages_rendered"`
	PagesUploaded   int            `json:"pages_uploaded"`
	PagesClassified int            `json:"pages_classified"`
	GroupsFormed    int            `json:"groups_formed"`
	QuestionsDone   int            `json:"questions_done"`
	QuestionsFailed []int          `json:"questions_failed,omitempty"`
	LastError       string         `json:"last_error,omitempty"`
	LastRawResponse string         `json:"last_raw_response,omitempty"`
}
