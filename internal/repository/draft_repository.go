package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campusflow/lms-api/internal/models"
)

// DraftRepository stores uncommitted request edits in Redis. Drafts are
// client-local state keyed by the staging actor, so two staff members never
// see each other's pending changes. The TTL bounds how long an abandoned
// draft survives.
type DraftRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDraftRepository constructs the repository.
func NewDraftRepository(client *redis.Client, ttl time.Duration) *DraftRepository {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &DraftRepository{client: client, ttl: ttl}
}

func draftKey(actorID, requestID string) string {
	return fmt.Sprintf("drafts:%s:%s", actorID, requestID)
}

// Save stores or replaces the draft for (actor, request).
func (r *DraftRepository) Save(ctx context.Context, actorID string, draft models.RequestDraft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := r.client.Set(ctx, draftKey(actorID, draft.RequestID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Find returns the draft staged by an actor for a request, or nil when none
// is staged.
func (r *DraftRepository) Find(ctx context.Context, actorID, requestID string) (*models.RequestDraft, error) {
	raw, err := r.client.Get(ctx, draftKey(actorID, requestID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}
	var draft models.RequestDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &draft, nil
}

// ListByActor returns every draft an actor has staged.
func (r *DraftRepository) ListByActor(ctx context.Context, actorID string) ([]models.RequestDraft, error) {
	pattern := fmt.Sprintf("drafts:%s:*", actorID)
	var drafts []models.RequestDraft
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("load draft %s: %w", iter.Val(), err)
		}
		var draft models.RequestDraft
		if err := json.Unmarshal(raw, &draft); err != nil {
			return nil, fmt.Errorf("unmarshal draft %s: %w", iter.Val(), err)
		}
		drafts = append(drafts, draft)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan drafts: %w", err)
	}
	return drafts, nil
}

// Delete discards a staged draft. Idempotent.
func (r *DraftRepository) Delete(ctx context.Context, actorID, requestID string) error {
	if err := r.client.Del(ctx, draftKey(actorID, requestID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// DeleteForRequest discards the drafts of every actor for one request, used
// when the underlying request is deleted or reaches a terminal state.
func (r *DraftRepository) DeleteForRequest(ctx context.Context, requestID string) error {
	pattern := fmt.Sprintf("drafts:*:%s", requestID)
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete draft %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan request drafts: %w", err)
	}
	return nil
}
