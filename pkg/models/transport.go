package models

// AnalysisRequest is the body of POST /api/analyze.
// Image holds base64 JPEG data; no other fields are recognised.
type AnalysisRequest struct {
	Image string `json:"image"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Generator string `json:"generator"`
	Time      string `json:"time"`
}
