package types

// ClassificationResult is the classifier's verdict for one request text.
type ClassificationResult struct {
	Intent          string   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	CandidateModels []string `json:"candidate_models"`
	Description     string   `json:"description"`
}
