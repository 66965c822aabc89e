package models

// AnalysisType identifies the task the vision model is asked to perform
// across the images of one request.
type AnalysisType string

const (
	AnalysisTypeSort     AnalysisType = "sort"
	AnalysisTypeClassify AnalysisType = "classify"
	AnalysisTypeDetect   AnalysisType = "detect"
	AnalysisTypeDescribe AnalysisType = "describe"
	AnalysisTypeCompare  AnalysisType = "compare"
)

// Valid reports whether the analysis type is one of the supported tasks
func (t AnalysisType) Valid() bool {
	switch t {
	case AnalysisTypeSort, AnalysisTypeClassify, AnalysisTypeDetect,
		AnalysisTypeDescribe, AnalysisTypeCompare:
		return true
	}
	return false
}

// QualityLevel is the caller's speed/quality trade-off hint
type QualityLevel string

const (
	QualityFast     QualityLevel = "fast"
	QualityBalanced QualityLevel = "balanced"
	QualityHigh     QualityLevel = "high"
)

// ImageRef identifies one input image. Exactly one of URL or InlineData
// must be set; Metadata is free-form caller context rendered into the prompt.
type ImageRef struct {
	ID         string            `json:"id"`
	URL        string            `json:"url,omitempty"`
	InlineData string            `json:"inline_data,omitempty"` // base64-encoded bytes
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HasSource reports whether the reference carries exactly one image source
func (r ImageRef) HasSource() bool {
	return (r.URL != "") != (r.InlineData != "")
}

// PerImageResult is one image's classification. ImageID is the join key;
// entry order carries no meaning.
type PerImageResult struct {
	ImageID        string            `json:"image_id"`
	Classification string            `json:"classification"`
	Confidence     float64           `json:"confidence,omitempty"`
	Reasoning      string            `json:"reasoning,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Failed         bool              `json:"failed,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Optimization reports what the atlas path saved relative to an
// all-individual run
type Optimization struct {
	CostSavings  float64 `json:"cost_savings"`
	TokenSavings int64   `json:"token_savings"`
	AtlasUsed    bool    `json:"atlas_used"`
	CacheHit     bool    `json:"cache_hit"`
}

// AtlasInfo describes the composite image generated for a request
type AtlasInfo struct {
	PositionMap map[string]string `json:"position_map"` // image id -> grid label
	ByteSize    int64             `json:"byte_size"`
	Format      string            `json:"format"`
	URL         string            `json:"url,omitempty"` // set when persisted externally
}

// ResponseMetadata carries per-request bookkeeping
type ResponseMetadata struct {
	RequestID        string `json:"request_id"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	ModelUsed        string `json:"model_used"`
	FallbackReason   string `json:"fallback_reason,omitempty"`
}

// AnalysisResponse is the engine's result for one request
type AnalysisResponse struct {
	Success      bool             `json:"success"`
	Results      []PerImageResult `json:"results"`
	Summary      string           `json:"summary"`
	Atlas        *AtlasInfo       `json:"atlas,omitempty"`
	Optimization Optimization     `json:"optimization"`
	Metadata     ResponseMetadata `json:"metadata"`
}
