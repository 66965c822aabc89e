package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType represents the type of processing event
type EventType string

const (
	// RequestStarted when a process call begins
	RequestStarted EventType = "request_started"
	// RequestCompleted when a process call finishes successfully
	RequestCompleted EventType = "request_completed"
	// RequestFailed when a process call fails
	RequestFailed EventType = "request_failed"
	// AtlasBuilt when a composite image was generated
	AtlasBuilt EventType = "atlas_built"
	// AtlasFallback when atlas generation failed and the request degraded
	// to individual processing
	AtlasFallback EventType = "atlas_fallback"
	// CacheHit when a response was served from the cache
	CacheHit EventType = "cache_hit"
)

// ProcessingEvent describes one orchestrator lifecycle event
type ProcessingEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id"`
	ImageCount     int                    `json:"image_count"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ProcessingEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ProcessingEvent)
}

// LoggingObserver logs processing events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{logger: logger}
}

// OnEvent handles processing events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event ProcessingEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"request_id":      event.RequestID,
		"image_count":     event.ImageCount,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case RequestFailed:
		o.logger.WithFields(fields).Error("Analysis request failed")
	case AtlasFallback:
		o.logger.WithFields(fields).Warn("Atlas generation failed, falling back to individual processing")
	case CacheHit:
		o.logger.WithFields(fields).Debug("Analysis response served from cache")
	default:
		o.logger.WithFields(fields).Info("Analysis event")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from processing events
type MetricsObserver struct {
	mu               sync.RWMutex
	totalRequests    int64
	completed        int64
	failed           int64
	atlasRequests    int64
	fallbacks        int64
	cacheHits        int64
	totalProcessTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles processing events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ProcessingEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case RequestStarted:
		o.totalRequests++
	case RequestCompleted:
		o.completed++
		o.totalProcessTime += event.ProcessingTime
	case RequestFailed:
		o.failed++
	case AtlasBuilt:
		o.atlasRequests++
	case AtlasFallback:
		o.fallbacks++
	case CacheHit:
		o.cacheHits++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current counters
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avg := time.Duration(0)
	if o.completed > 0 {
		avg = o.totalProcessTime / time.Duration(o.completed)
	}
	return map[string]interface{}{
		"total_requests":      o.totalRequests,
		"completed":           o.completed,
		"failed":              o.failed,
		"atlas_requests":      o.atlasRequests,
		"atlas_fallbacks":     o.fallbacks,
		"cache_hits":          o.cacheHits,
		"avg_processing_time": avg.String(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{observers: make([]Observer, 0)}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ProcessingEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}
