package service

import (
	"context"
	"fmt"
	"image"
	"strings"
	"testing"
	"time"

	"go-vision-atlas/internal/atlas"
	"go-vision-atlas/internal/cache"
	apperrors "go-vision-atlas/internal/errors"
	"go-vision-atlas/internal/model"
	"go-vision-atlas/internal/strategy"
	"go-vision-atlas/pkg/models"
)

// fakeRepo resolves every reference to placeholder bytes unless the id is
// listed as failing
type fakeRepo struct {
	failIDs  map[string]bool
	resolved int
}

func (r *fakeRepo) ResolveBytes(ctx context.Context, ref models.ImageRef) ([]byte, string, error) {
	r.resolved++
	if r.failIDs[ref.ID] {
		return nil, "", fmt.Errorf("simulated fetch failure")
	}
	return []byte("image-bytes-" + ref.ID), "image/jpeg", nil
}

func (r *fakeRepo) Resolve(ctx context.Context, ref models.ImageRef) (image.Image, error) {
	if r.failIDs[ref.ID] {
		return nil, fmt.Errorf("simulated fetch failure")
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (r *fakeRepo) ValidateRef(ref models.ImageRef) error {
	if ref.ID == "" {
		return fmt.Errorf("missing id")
	}
	if ref.URL == "" && ref.InlineData == "" {
		return fmt.Errorf("no source")
	}
	if ref.URL != "" && ref.InlineData != "" {
		return fmt.Errorf("ambiguous source")
	}
	return nil
}

// fakeBuilder returns a minimal artifact or fails on demand
type fakeBuilder struct {
	fail   bool
	builds int
}

func (b *fakeBuilder) Build(ctx context.Context, images []models.ImageRef, opts atlas.BuildOptions) (*atlas.Artifact, error) {
	b.builds++
	if b.fail {
		return nil, apperrors.NewFetchError(images[0].ID, fmt.Errorf("simulated build failure"))
	}
	ids := make([]string, len(images))
	for i, ref := range images {
		ids[i] = ref.ID
	}
	pm, err := atlas.NewPositionMap(ids)
	if err != nil {
		return nil, err
	}
	return &atlas.Artifact{
		EncodedBytes:  []byte("atlas-bytes"),
		PositionMap:   pm,
		OriginalCount: len(images),
		GeneratedAt:   time.Now(),
		ByteSize:      11,
		Format:        "jpeg",
	}, nil
}

// fakeExecutor returns scripted responses in call order
type fakeExecutor struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (e *fakeExecutor) Invoke(ctx context.Context, promptText string, payload model.ImagePayload, detail strategy.DetailLevel) (*model.RawResponse, error) {
	e.prompts = append(e.prompts, promptText)
	idx := e.calls
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	text := `{"results":[{"position":"A1","classification":"ok"}],"summary":"one"}`
	if idx < len(e.responses) {
		text = e.responses[idx]
	}
	return &model.RawResponse{Text: text, Model: "fake", Usage: model.Usage{TotalTokens: 900}}, nil
}

func newTestOrchestrator(repo *fakeRepo, builder *fakeBuilder, executor *fakeExecutor) (*Orchestrator, *cache.ResponseCache) {
	responseCache := cache.NewResponseCache(time.Hour)
	orchestrator := NewOrchestrator(
		repo,
		builder,
		strategy.NewSelector(3),
		executor,
		responseCache,
		nil,
		nil,
		atlas.DefaultBuildOptions(),
		"fake-model",
	)
	return orchestrator, responseCache
}

func validRequest(ids ...string) models.AnalysisRequest {
	images := make([]models.ImageRef, len(ids))
	for i, id := range ids {
		images[i] = models.ImageRef{ID: id, URL: "http://example.com/" + id + ".jpg"}
	}
	return models.AnalysisRequest{
		Images:       images,
		Query:        "find the brightest photo",
		AnalysisType: models.AnalysisTypeSort,
		UserID:       "user-1",
	}
}

func TestOrchestrator_ValidationFailsBeforeAnyIO(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.AnalysisRequest)
	}{
		{"no images", func(r *models.AnalysisRequest) { r.Images = nil }},
		{"too many images", func(r *models.AnalysisRequest) {
			r.Images = make([]models.ImageRef, 51)
			for i := range r.Images {
				r.Images[i] = models.ImageRef{ID: fmt.Sprintf("img-%d", i), URL: "http://example.com/x.jpg"}
			}
		}},
		{"empty query", func(r *models.AnalysisRequest) { r.Query = "   " }},
		{"missing user id", func(r *models.AnalysisRequest) { r.UserID = "" }},
		{"bad analysis type", func(r *models.AnalysisRequest) { r.AnalysisType = "rank" }},
		{"duplicate image ids", func(r *models.AnalysisRequest) {
			r.Images = append(r.Images, r.Images[0])
		}},
		{"image without source", func(r *models.AnalysisRequest) {
			r.Images[0].URL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{}
			builder := &fakeBuilder{}
			executor := &fakeExecutor{}
			orchestrator, c := newTestOrchestrator(repo, builder, executor)
			defer c.Stop()

			req := validRequest("a", "b", "c")
			tt.mutate(&req)

			_, err := orchestrator.Process(context.Background(), req)
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
			if repo.resolved != 0 || builder.builds != 0 || executor.calls != 0 {
				t.Error("Expected no I/O before validation failure")
			}
		})
	}
}

func TestOrchestrator_AtlasPathMapsPositionsToImages(t *testing.T) {
	repo := &fakeRepo{}
	builder := &fakeBuilder{}
	executor := &fakeExecutor{responses: []string{
		`{"results":[{"position":"A2","classification":"brightest"}],"summary":"done"}`,
	}}
	orchestrator, c := newTestOrchestrator(repo, builder, executor)
	defer c.Stop()

	response, err := orchestrator.Process(context.Background(), validRequest("a", "b", "c"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !response.Success {
		t.Error("Expected success")
	}
	if !response.Optimization.AtlasUsed {
		t.Error("Expected the atlas path")
	}
	if response.Optimization.CacheHit {
		t.Error("Expected a cache miss on the first call")
	}
	if executor.calls != 1 {
		t.Errorf("Expected a single model call, got %d", executor.calls)
	}

	if len(response.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(response.Results))
	}
	if response.Results[0].ImageID != "b" {
		t.Errorf("Expected A2 to resolve to image 'b', got %q", response.Results[0].ImageID)
	}
	if response.Results[0].Classification != "brightest" {
		t.Errorf("Expected classification 'brightest', got %q", response.Results[0].Classification)
	}
	if response.Summary != "done" {
		t.Errorf("Expected summary 'done', got %q", response.Summary)
	}

	if response.Atlas == nil {
		t.Fatal("Expected atlas info in the response")
	}
	if len(response.Atlas.PositionMap) != 3 {
		t.Errorf("Expected 3 position map entries, got %d", len(response.Atlas.PositionMap))
	}
	if response.Atlas.PositionMap["a"] != "A1" {
		t.Errorf("Expected a -> A1, got %s", response.Atlas.PositionMap["a"])
	}

	if response.Metadata.RequestID == "" {
		t.Error("Expected a request id")
	}
	if response.Metadata.ModelUsed != "fake-model" {
		t.Errorf("Expected model 'fake-model', got %q", response.Metadata.ModelUsed)
	}
	if response.Optimization.TokenSavings <= 0 {
		t.Error("Expected positive token savings on the atlas path")
	}
}

func TestOrchestrator_CacheIdempotence(t *testing.T) {
	repo := &fakeRepo{}
	builder := &fakeBuilder{}
	executor := &fakeExecutor{responses: []string{
		`{"results":[{"position":"A1","classification":"first"}],"summary":"s"}`,
	}}
	orchestrator, c := newTestOrchestrator(repo, builder, executor)
	defer c.Stop()

	req := validRequest("a", "b", "c")

	first, err := orchestrator.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := orchestrator.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if first.Optimization.CacheHit {
		t.Error("Expected the first call to miss the cache")
	}
	if !second.Optimization.CacheHit {
		t.Error("Expected the second call to hit the cache")
	}
	if executor.calls != 1 {
		t.Errorf("Expected 1 model call across both requests, got %d", executor.calls)
	}

	if len(first.Results) != len(second.Results) {
		t.Fatal("Expected identical results from the cache")
	}
	for i := range first.Results {
		if first.Results[i].ImageID != second.Results[i].ImageID ||
			first.Results[i].Classification != second.Results[i].Classification {
			t.Errorf("Result %d differs between calls", i)
		}
	}
}

func TestOrchestrator_AtlasBuildFailureFallsBackToIndividual(t *testing.T) {
	repo := &fakeRepo{}
	builder := &fakeBuilder{fail: true}
	executor := &fakeExecutor{}
	orchestrator, c := newTestOrchestrator(repo, builder, executor)
	defer c.Stop()

	response, err := orchestrator.Process(context.Background(), validRequest("a", "b", "c"))
	if err != nil {
		t.Fatalf("Expected graceful degradation, got error: %v", err)
	}

	if !response.Success {
		t.Error("Expected success despite the fallback")
	}
	if response.Optimization.AtlasUsed {
		t.Error("Expected atlasUsed=false after fallback")
	}
	if response.Metadata.FallbackReason == "" {
		t.Error("Expected the fallback to be observable in response metadata")
	}
	if executor.calls != 3 {
		t.Errorf("Expected one model call per image after fallback, got %d", executor.calls)
	}
	if len(response.Results) != 3 {
		t.Errorf("Expected 3 results, got %d", len(response.Results))
	}
}

func TestOrchestrator_IndividualPathIsolatesFetchFailures(t *testing.T) {
	repo := &fakeRepo{failIDs: map[string]bool{"bad": true}}
	builder := &fakeBuilder{}
	executor := &fakeExecutor{}
	orchestrator, c := newTestOrchestrator(repo, builder, executor)
	defer c.Stop()

	// Two images stay below the atlas threshold.
	response, err := orchestrator.Process(context.Background(), validRequest("good", "bad"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if builder.builds != 0 {
		t.Error("Expected the individual path without any atlas build")
	}
	if len(response.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(response.Results))
	}

	byID := map[string]models.PerImageResult{}
	for _, r := range response.Results {
		byID[r.ImageID] = r
	}
	if byID["bad"].Failed == false {
		t.Error("Expected the failing image marked failed")
	}
	if byID["good"].Failed {
		t.Error("Expected the healthy image to succeed")
	}
	if byID["good"].Classification != "ok" {
		t.Errorf("Expected classification 'ok', got %q", byID["good"].Classification)
	}
	if executor.calls != 1 {
		t.Errorf("Expected the model called only for the resolvable image, got %d calls", executor.calls)
	}
}

func TestOrchestrator_ModelErrorPropagates(t *testing.T) {
	repo := &fakeRepo{}
	builder := &fakeBuilder{}
	executor := &fakeExecutor{err: apperrors.NewModelError("endpoint down", 3, fmt.Errorf("boom"))}
	orchestrator, c := newTestOrchestrator(repo, builder, executor)
	defer c.Stop()

	_, err := orchestrator.Process(context.Background(), validRequest("a", "b", "c"))
	if err == nil {
		t.Fatal("Expected the model error to propagate")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeModel) {
		t.Errorf("Expected model error, got %v", err)
	}
}

func TestOrchestrator_OverflowImagesProcessedIndividually(t *testing.T) {
	repo := &fakeRepo{}
	builder := &fakeBuilder{}
	executor := &fakeExecutor{responses: []string{
		`{"results":[{"position":"A1","classification":"from-atlas"}],"summary":"atlas"}`,
	}}
	orchestrator, c := newTestOrchestrator(repo, builder, executor)
	defer c.Stop()

	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("img-%d", i)
	}
	response, err := orchestrator.Process(context.Background(), validRequest(ids...))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// One atlas call plus three overflow calls.
	if executor.calls != 4 {
		t.Errorf("Expected 4 model calls, got %d", executor.calls)
	}
	if builder.builds != 1 {
		t.Errorf("Expected 1 atlas build, got %d", builder.builds)
	}
	if len(response.Atlas.PositionMap) != 9 {
		t.Errorf("Expected the atlas to tile the first 9 images, got %d", len(response.Atlas.PositionMap))
	}
	// 1 atlas result + 3 overflow results.
	if len(response.Results) != 4 {
		t.Errorf("Expected 4 results, got %d", len(response.Results))
	}
}

func TestOrchestrator_PromptContainsQuery(t *testing.T) {
	repo := &fakeRepo{}
	builder := &fakeBuilder{}
	executor := &fakeExecutor{}
	orchestrator, c := newTestOrchestrator(repo, builder, executor)
	defer c.Stop()

	if _, err := orchestrator.Process(context.Background(), validRequest("a", "b", "c")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(executor.prompts) == 0 {
		t.Fatal("Expected the executor to receive a prompt")
	}
	if !strings.Contains(executor.prompts[0], "find the brightest photo") {
		t.Error("Expected the prompt to embed the user query verbatim")
	}
}
