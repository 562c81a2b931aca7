package service

import (
	"context"
	"errors"
	"time"

	apperrors "go-aid-analyzer/internal/errors"
	"go-aid-analyzer/internal/generation"
	"go-aid-analyzer/internal/logger"
	"go-aid-analyzer/internal/observer"
	"go-aid-analyzer/pkg/models"
	"go-aid-analyzer/pkg/validation"

	"github.com/sirupsen/logrus"
)

// AidPrompt is sent with every image. It is never built from request data.
const AidPrompt = "Act as an empathetic community aid worker. Analyze the person in this image. " +
	"Estimate their likely age group, emotional state (tired? stressed? happy?), and any visible needs " +
	"(are they wearing warm clothes?). Based on this visual analysis and a hypothetical cold rainy day, " +
	"suggest 2 distinct aid items (e.g., food, clothing, medical). Format as HTML bullets."

// AnalysisService turns a submitted image into aid suggestions.
type AnalysisService interface {
	// Analyze returns the upstream text verbatim, or an *errors.AppError
	// describing the status and body to send back.
	Analyze(ctx context.Context, request models.AnalysisRequest) (string, error)
}

// CredentialChecker is implemented by generators that need an API key.
type CredentialChecker interface {
	HasCredential() bool
}

type analysisService struct {
	generator generation.Generator
	events    observer.Subject
}

// NewAnalysisService creates a new analysis service. events may be nil.
func NewAnalysisService(generator generation.Generator, events observer.Subject) AnalysisService {
	return &analysisService{
		generator: generator,
		events:    events,
	}
}

func (s *analysisService) Analyze(ctx context.Context, request models.AnalysisRequest) (string, error) {
	startTime := time.Now()
	event := observer.AnalysisEvent{
		Timestamp: startTime,
		RequestID: logger.RequestIDFromContext(ctx),
		Generator: s.generator.Name(),
		ImageSize: len(request.Image),
	}

	event.EventType = observer.AnalysisStarted
	s.publish(ctx, event)

	text, err := s.analyze(ctx, request)

	event.Timestamp = time.Now()
	event.ProcessingTime = time.Since(startTime)
	if err != nil {
		event.EventType = observer.AnalysisFailed
		if appErr, ok := apperrors.As(err); ok {
			event.ErrorType = string(appErr.Type)
		}
		event.ErrorMessage = err.Error()
	} else {
		event.EventType = observer.AnalysisCompleted
		event.Success = true
	}
	s.publish(ctx, event)

	return text, err
}

func (s *analysisService) analyze(ctx context.Context, request models.AnalysisRequest) (string, error) {
	if err := validation.ValidateImagePayload(request.Image); err != nil {
		return "", err
	}

	if cc, ok := s.generator.(CredentialChecker); ok && !cc.HasCredential() {
		return "", apperrors.NewMisconfiguredError(apperrors.MessageMissingAPIKey, nil)
	}

	payload := generation.NewPayload(AidPrompt, request.Image)

	result, err := s.generator.Generate(ctx, payload)
	if err != nil {
		return "", translateGenerationError(ctx, err)
	}

	logger.WithFields(logrus.Fields{
		"request_id":    logger.RequestIDFromContext(ctx),
		"model":         result.Model,
		"finish_reason": result.FinishReason,
		"text_length":   len(result.Text),
	}).Debug("Upstream generation succeeded")

	return result.Text, nil
}

func translateGenerationError(ctx context.Context, err error) error {
	entry := logger.WithError(err).WithField("request_id", logger.RequestIDFromContext(ctx))

	var upErr *generation.UpstreamError
	switch {
	case errors.As(err, &upErr):
		entry.WithFields(logrus.Fields{
			"upstream_status":  upErr.StatusCode,
			"upstream_message": upErr.Message,
		}).Warn("Upstream generation failed")
		return apperrors.NewUpstreamError(upErr.Message, err)
	case errors.Is(err, generation.ErrUnexpectedShape):
		entry.Warn("Upstream response had an unexpected shape")
		return apperrors.NewUnexpectedShapeError(err)
	default:
		entry.Error("Generation failed")
		return apperrors.NewInternalError(apperrors.MessageAnalysisFailed, err)
	}
}

func (s *analysisService) publish(ctx context.Context, event observer.AnalysisEvent) {
	if s.events != nil {
		s.events.NotifyObservers(ctx, event)
	}
}
