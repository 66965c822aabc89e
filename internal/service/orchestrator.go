package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-vision-atlas/internal/atlas"
	"go-vision-atlas/internal/cache"
	apperrors "go-vision-atlas/internal/errors"
	"go-vision-atlas/internal/logger"
	"go-vision-atlas/internal/model"
	"go-vision-atlas/internal/observer"
	"go-vision-atlas/internal/parser"
	"go-vision-atlas/internal/prompt"
	"go-vision-atlas/internal/repository"
	"go-vision-atlas/internal/storage"
	"go-vision-atlas/internal/strategy"
	"go-vision-atlas/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// MaxRequestImages bounds one analysis request
	MaxRequestImages = 50

	// perImageBaseTokens estimates the tokens one individual image call
	// consumes, used to compute the savings of the atlas path
	perImageBaseTokens int64 = 1100
	// costPerThousandTokens converts token savings into dollar savings
	costPerThousandTokens = 0.0025
)

// AtlasBuilder generates composite images
type AtlasBuilder interface {
	Build(ctx context.Context, images []models.ImageRef, opts atlas.BuildOptions) (*atlas.Artifact, error)
}

// QueryExecutor sends one prompt plus image payload to the vision model
type QueryExecutor interface {
	Invoke(ctx context.Context, promptText string, payload model.ImagePayload, detail strategy.DetailLevel) (*model.RawResponse, error)
}

// Orchestrator composes strategy selection, atlas generation, model
// invocation and response parsing into one request/response cycle
type Orchestrator struct {
	repo      repository.ImageRepository
	builder   AtlasBuilder
	selector  *strategy.Selector
	executor  QueryExecutor
	cache     *cache.ResponseCache
	store     storage.AtlasStore // optional
	publisher observer.Subject   // optional
	buildOpts atlas.BuildOptions
	modelName string
	now       func() time.Time
}

// NewOrchestrator wires the engine together. store and publisher may be nil.
func NewOrchestrator(
	repo repository.ImageRepository,
	builder AtlasBuilder,
	selector *strategy.Selector,
	executor QueryExecutor,
	responseCache *cache.ResponseCache,
	store storage.AtlasStore,
	publisher observer.Subject,
	buildOpts atlas.BuildOptions,
	modelName string,
) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		builder:   builder,
		selector:  selector,
		executor:  executor,
		cache:     responseCache,
		store:     store,
		publisher: publisher,
		buildOpts: buildOpts,
		modelName: modelName,
		now:       time.Now,
	}
}

// Process runs one analysis request end to end. Validation failures are
// raised before any cache or network access.
func (o *Orchestrator) Process(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	started := o.now()
	o.notify(ctx, observer.ProcessingEvent{
		EventType:  observer.RequestStarted,
		Timestamp:  started,
		RequestID:  requestID,
		ImageCount: len(req.Images),
	})

	cacheKey := cache.Key(req)
	if cached, ok := o.cache.Get(cacheKey); ok {
		cached.Optimization.CacheHit = true
		cached.Metadata.RequestID = requestID
		cached.Metadata.ProcessingTimeMs = time.Since(started).Milliseconds()
		o.notify(ctx, observer.ProcessingEvent{
			EventType:  observer.CacheHit,
			Timestamp:  o.now(),
			RequestID:  requestID,
			ImageCount: len(req.Images),
			Success:    true,
		})
		return &cached, nil
	}

	decision := o.selector.Decide(len(req.Images), req.Options.ForceAtlas, req.Options.QualityLevel)
	logger.WithRequestID(requestID).WithFields(logrus.Fields{
		"use_atlas":   decision.UseAtlas(),
		"detail":      decision.Detail,
		"reason":      decision.Reason,
		"image_count": len(req.Images),
	}).Info("Strategy selected")

	var (
		response *models.AnalysisResponse
		err      error
	)
	if decision.UseAtlas() {
		response, err = o.processAtlas(ctx, req, decision, requestID)
	} else {
		response, err = o.processIndividual(ctx, req, decision, requestID, "")
	}
	if err != nil {
		o.notify(ctx, observer.ProcessingEvent{
			EventType:    observer.RequestFailed,
			Timestamp:    o.now(),
			RequestID:    requestID,
			ImageCount:   len(req.Images),
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	response.Metadata.RequestID = requestID
	response.Metadata.ProcessingTimeMs = time.Since(started).Milliseconds()
	response.Metadata.ModelUsed = o.modelName

	o.cache.Set(cacheKey, *response, time.Duration(req.Options.CacheTTLSeconds)*time.Second)

	o.notify(ctx, observer.ProcessingEvent{
		EventType:      observer.RequestCompleted,
		Timestamp:      o.now(),
		RequestID:      requestID,
		ImageCount:     len(req.Images),
		ProcessingTime: time.Since(started),
		Success:        true,
		Metadata: map[string]interface{}{
			"atlas_used": response.Optimization.AtlasUsed,
		},
	})
	return response, nil
}

// validate applies the engine's request invariants before any I/O
func (o *Orchestrator) validate(req models.AnalysisRequest) error {
	if len(req.Images) == 0 {
		return apperrors.NewValidationError("request must contain at least one image", nil)
	}
	if len(req.Images) > MaxRequestImages {
		return apperrors.NewValidationError(
			fmt.Sprintf("request exceeds %d image limit", MaxRequestImages), nil)
	}
	if strings.TrimSpace(req.Query) == "" {
		return apperrors.NewValidationError("query must not be empty", nil)
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user id is required", nil)
	}
	if !req.AnalysisType.Valid() {
		return apperrors.NewValidationError(
			fmt.Sprintf("unsupported analysis type %q", req.AnalysisType), nil)
	}

	seen := make(map[string]bool, len(req.Images))
	for _, ref := range req.Images {
		if err := o.repo.ValidateRef(ref); err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("invalid image reference %q", ref.ID), err)
		}
		if seen[ref.ID] {
			return apperrors.NewValidationError(fmt.Sprintf("duplicate image id %q", ref.ID), nil)
		}
		seen[ref.ID] = true
	}
	return nil
}

// processAtlas runs the composite path: at most nine images are tiled, any
// remainder is processed individually within the same request. A build
// failure degrades the whole request to individual processing.
func (o *Orchestrator) processAtlas(ctx context.Context, req models.AnalysisRequest, decision strategy.Decision, requestID string) (*models.AnalysisResponse, error) {
	atlasImages := req.Images
	var overflow []models.ImageRef
	if len(atlasImages) > atlas.MaxGridImages {
		overflow = atlasImages[atlas.MaxGridImages:]
		atlasImages = atlasImages[:atlas.MaxGridImages]
	}

	buildOpts := o.buildOpts
	if req.Options.QualityLevel == models.QualityFast {
		buildOpts = atlas.FastBuildOptions().WithMaxFileSize(o.buildOpts.MaxFileSize)
	}

	artifact, err := o.builder.Build(ctx, atlasImages, buildOpts)
	if err != nil {
		reason := fmt.Sprintf("atlas generation failed: %v", err)
		o.notify(ctx, observer.ProcessingEvent{
			EventType:    observer.AtlasFallback,
			Timestamp:    o.now(),
			RequestID:    requestID,
			ImageCount:   len(req.Images),
			ErrorMessage: err.Error(),
		})
		return o.processIndividual(ctx, req, decision, requestID, reason)
	}

	o.notify(ctx, observer.ProcessingEvent{
		EventType:  observer.AtlasBuilt,
		Timestamp:  o.now(),
		RequestID:  requestID,
		ImageCount: artifact.OriginalCount,
		Success:    true,
		Metadata: map[string]interface{}{
			"byte_size":       artifact.ByteSize,
			"format":          artifact.Format,
			"recompressions":  artifact.Recompressions,
			"occupied_cells":  artifact.OriginalCount,
			"overflow_images": len(overflow),
		},
	})

	metadata := make(map[string]map[string]string, len(atlasImages))
	for _, ref := range atlasImages {
		if len(ref.Metadata) > 0 {
			metadata[ref.ID] = ref.Metadata
		}
	}
	promptText := prompt.RenderAtlas(req.Query, req.AnalysisType, artifact.PositionMap, metadata)

	payload := model.ImagePayload{
		Data:     artifact.EncodedBytes,
		MimeType: mimeTypeFor(artifact.Format),
	}
	raw, err := o.executor.Invoke(ctx, promptText, payload, decision.Detail)
	if err != nil {
		return nil, err
	}

	parsed := parser.Parse(raw.Text, artifact.PositionMap)

	response := &models.AnalysisResponse{
		Success: true,
		Results: parsed.Results,
		Summary: parsed.Summary,
		Atlas: &models.AtlasInfo{
			PositionMap: positionMapStrings(artifact.PositionMap),
			ByteSize:    artifact.ByteSize,
			Format:      artifact.Format,
		},
		Optimization: o.atlasOptimization(len(atlasImages), raw.Usage),
	}

	o.persistAtlas(ctx, artifact, response, requestID)

	// Images beyond the ninth cell go through the individual path in the
	// same request.
	if len(overflow) > 0 {
		overflowResults, _, err := o.invokePerImage(ctx, overflow, req, decision)
		if err != nil {
			return nil, err
		}
		response.Results = append(response.Results, overflowResults...)
	}

	return response, nil
}

// processIndividual runs one model call per image, strictly sequentially to
// bound outbound load. fallbackReason is non-empty when this path is the
// degradation of a failed atlas build.
func (o *Orchestrator) processIndividual(ctx context.Context, req models.AnalysisRequest, decision strategy.Decision, requestID, fallbackReason string) (*models.AnalysisResponse, error) {
	results, summaries, err := o.invokePerImage(ctx, req.Images, req, decision)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("processed %d images individually", len(req.Images))
	if len(summaries) == 1 {
		summary = summaries[0]
	}

	response := &models.AnalysisResponse{
		Success: true,
		Results: results,
		Summary: summary,
		// Individual processing yields no savings over itself.
		Optimization: models.Optimization{},
	}
	response.Metadata.FallbackReason = fallbackReason
	return response, nil
}

// invokePerImage performs the sequential per-image calls shared by the
// individual path and the atlas overflow. Fetch failures become failed
// per-image results; model failures propagate.
func (o *Orchestrator) invokePerImage(ctx context.Context, images []models.ImageRef, req models.AnalysisRequest, decision strategy.Decision) ([]models.PerImageResult, []string, error) {
	results := make([]models.PerImageResult, 0, len(images))
	var summaries []string

	for _, ref := range images {
		data, mimeType, err := o.repo.ResolveBytes(ctx, ref)
		if err != nil {
			logger.WithError(err).WithField("image_id", ref.ID).Warn("Image resolution failed")
			results = append(results, models.PerImageResult{
				ImageID: ref.ID,
				Failed:  true,
				Error:   fmt.Sprintf("image could not be resolved: %v", err),
			})
			continue
		}

		promptText := prompt.RenderSingle(req.Query, req.AnalysisType, ref)
		raw, err := o.executor.Invoke(ctx, promptText, model.ImagePayload{Data: data, MimeType: mimeType}, decision.Detail)
		if err != nil {
			return nil, nil, err
		}

		singleMap := atlas.PositionMap{ref.ID: atlas.GridPositions[0]}
		parsed := parser.Parse(raw.Text, singleMap)
		if len(parsed.Results) == 0 {
			results = append(results, models.PerImageResult{
				ImageID: ref.ID,
				Failed:  true,
				Error:   "model returned no usable result",
			})
			continue
		}

		result := parsed.Results[0]
		result.ImageID = ref.ID
		results = append(results, result)
		summaries = append(summaries, parsed.Summary)
	}

	return results, summaries, nil
}

// atlasOptimization compares actual atlas usage against the estimated cost
// of an all-individual run
func (o *Orchestrator) atlasOptimization(imageCount int, usage model.Usage) models.Optimization {
	estimated := int64(imageCount) * perImageBaseTokens
	actual := usage.TotalTokens
	if actual == 0 {
		// No usage reported: assume one base call was spent.
		actual = perImageBaseTokens
	}

	savings := estimated - actual
	if savings < 0 {
		savings = 0
	}
	return models.Optimization{
		TokenSavings: savings,
		CostSavings:  float64(savings) / 1000.0 * costPerThousandTokens,
		AtlasUsed:    true,
	}
}

// persistAtlas uploads the artifact when a store is configured. Persistence
// is best-effort and never fails the request.
func (o *Orchestrator) persistAtlas(ctx context.Context, artifact *atlas.Artifact, response *models.AnalysisResponse, requestID string) {
	if o.store == nil {
		return
	}
	url, err := o.store.Upload(ctx, artifact.EncodedBytes, mimeTypeFor(artifact.Format))
	if err != nil {
		logger.WithRequestID(requestID).WithError(err).Warn("Atlas persistence failed")
		return
	}
	response.Atlas.URL = url
}

func (o *Orchestrator) notify(ctx context.Context, event observer.ProcessingEvent) {
	if o.publisher != nil {
		o.publisher.NotifyObservers(ctx, event)
	}
}

func positionMapStrings(pm atlas.PositionMap) map[string]string {
	out := make(map[string]string, len(pm))
	for id, pos := range pm {
		out[id] = string(pos)
	}
	return out
}

func mimeTypeFor(format string) string {
	if format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}
