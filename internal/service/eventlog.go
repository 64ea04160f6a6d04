package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"container_telemetry/internal/models"
	"container_telemetry/internal/repository"
)

// MaxLogLimit caps a single page of the event log.
const MaxLogLimit = 1000

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	ErrInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	ErrInvalidSeverity  = errors.New("invalid severity filter")
	ErrInvalidLimit     = errors.New("invalid limit")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeCategory trims spaces and uppercases the category filter.
func normalizeCategory(s string) models.Category {
	return models.Category(strings.TrimSpace(strings.ToUpper(s)))
}

// normalizeAndValidateFilter prepares repository query parameters.
func normalizeAndValidateFilter(f LogFilter) (repository.EventQuery, error) {
	q := repository.EventQuery{
		From:     normalizeToUTC(f.From),
		To:       normalizeToUTC(f.To),
		Category: normalizeCategory(f.Category),
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return repository.EventQuery{}, ErrInvalidTimeRange
	}

	if strings.TrimSpace(f.Severity) != "" {
		sev, err := models.ParseSeverity(f.Severity)
		if err != nil {
			return repository.EventQuery{}, fmt.Errorf("%w: %v", ErrInvalidSeverity, err)
		}
		q.MinSeverity = &sev
	}

	switch {
	case f.Limit < 0:
		return repository.EventQuery{}, fmt.Errorf("%w: %d", ErrInvalidLimit, f.Limit)
	case f.Limit > MaxLogLimit:
		q.Limit = MaxLogLimit
	default:
		q.Limit = f.Limit
	}
	return q, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.Event, error) {
	q, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, q)
}
