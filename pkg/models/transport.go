package models

// AnalysisOptions carries the caller's per-request tuning knobs
type AnalysisOptions struct {
	ForceAtlas      bool         `json:"force_atlas,omitempty"`
	CacheTTLSeconds int          `json:"cache_ttl_seconds,omitempty"`
	QualityLevel    QualityLevel `json:"quality_level,omitempty"`
}

// AnalysisRequest is the engine's single entry-point payload
type AnalysisRequest struct {
	Images       []ImageRef      `json:"images" binding:"required,min=1,max=50"`
	Query        string          `json:"query" binding:"required"`
	AnalysisType AnalysisType    `json:"analysis_type" binding:"required"`
	UserID       string          `json:"user_id" binding:"required"`
	Options      AnalysisOptions `json:"options,omitempty"`
}

// ErrorResponse is the transport-level error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
