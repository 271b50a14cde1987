// Package memory хранит данные движка в памяти процесса: для локального запуска и тестов.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"news-publisher/internal/domain"
)

// Store реализует репозитории domain поверх map с одним мьютексом.
type Store struct {
	mu          sync.Mutex
	contents    map[uuid.UUID]domain.ContentItem
	revisions   map[uuid.UUID][]domain.ContentRevision
	sources     map[uuid.UUID]domain.Source
	rules       []domain.RuleRecord
	emergencies map[int64]domain.EmergencyQueueItem
	jobs        map[int64]domain.PublishJob
	logs        []domain.ChannelPublishLog
	published   map[uuid.UUID]domain.PublishedContent
	nextSeq     int64
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		contents:    make(map[uuid.UUID]domain.ContentItem),
		revisions:   make(map[uuid.UUID][]domain.ContentRevision),
		sources:     make(map[uuid.UUID]domain.Source),
		emergencies: make(map[int64]domain.EmergencyQueueItem),
		jobs:        make(map[int64]domain.PublishJob),
		published:   make(map[uuid.UUID]domain.PublishedContent),
	}
}

func (s *Store) seq() int64 {
	s.nextSeq++
	return s.nextSeq
}

// PutSource добавляет или заменяет источник.
func (s *Store) PutSource(src domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
}

// AddRule добавляет правило в конец списка.
func (s *Store) AddRule(rec domain.RuleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rec)
}

// GetSource реализует domain.SourceRepo.
func (s *Store) GetSource(_ context.Context, id uuid.UUID) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return domain.Source{}, domain.ErrNotFound
	}
	return src, nil
}

// ListRules реализует domain.RuleRepo.
func (s *Store) ListRules(context.Context) ([]domain.RuleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RuleRecord(nil), s.rules...), nil
}

// CreateContent реализует domain.ContentRepo.
func (s *Store) CreateContent(_ context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if _, exists := s.contents[item.ID]; exists {
		return domain.ContentItem{}, domain.NewValidationError("id", "материал уже существует")
	}
	item.Channels = clonePlatforms(item.Channels)
	s.contents[item.ID] = item
	return item, nil
}

// GetContent реализует domain.ContentRepo.
func (s *Store) GetContent(_ context.Context, id uuid.UUID) (domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.contents[id]
	if !ok {
		return domain.ContentItem{}, domain.ErrNotFound
	}
	item.Channels = clonePlatforms(item.Channels)
	return item, nil
}

// ApplyTransition реализует domain.ContentRepo.
func (s *Store) ApplyTransition(_ context.Context, item domain.ContentItem, expectedVersion int, rev domain.ContentRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.contents[item.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.CurrentVersionNo != expectedVersion {
		return domain.ErrVersionConflict
	}
	for _, r := range s.revisions[item.ID] {
		if r.VersionNo == rev.VersionNo {
			return domain.ErrVersionConflict
		}
	}
	item.Channels = clonePlatforms(item.Channels)
	s.contents[item.ID] = item
	rev.ID = s.seq()
	s.revisions[item.ID] = append(s.revisions[item.ID], rev)
	return nil
}

// ListRevisions реализует domain.ContentRepo.
func (s *Store) ListRevisions(_ context.Context, contentID uuid.UUID) ([]domain.ContentRevision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ContentRevision(nil), s.revisions[contentID]...), nil
}

// ListDueScheduled реализует domain.ContentRepo.
func (s *Store) ListDueScheduled(_ context.Context, now time.Time, limit int) ([]domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ContentItem
	for _, item := range s.contents {
		if item.Status == domain.ContentStatusScheduled && item.ScheduledAt != nil && !item.ScheduledAt.After(now) {
			item.Channels = clonePlatforms(item.Channels)
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddEmergency реализует domain.EmergencyQueueRepo.
func (s *Store) AddEmergency(_ context.Context, item domain.EmergencyQueueItem) (domain.EmergencyQueueItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.emergencies {
		if existing.ContentID == item.ContentID && existing.Status == domain.EmergencyPending {
			return existing, false, nil
		}
	}
	item.ID = s.seq()
	item.Status = domain.EmergencyPending
	item.MatchedKeywords = append([]string(nil), item.MatchedKeywords...)
	s.emergencies[item.ID] = item
	return item, true, nil
}

// GetEmergency реализует domain.EmergencyQueueRepo.
func (s *Store) GetEmergency(_ context.Context, id int64) (domain.EmergencyQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.emergencies[id]
	if !ok {
		return domain.EmergencyQueueItem{}, domain.ErrNotFound
	}
	return item, nil
}

// ListPendingEmergencies реализует domain.EmergencyQueueRepo.
func (s *Store) ListPendingEmergencies(_ context.Context, limit int) ([]domain.EmergencyQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EmergencyQueueItem
	for _, item := range s.emergencies {
		if item.Status == domain.EmergencyPending {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ResolveEmergency реализует domain.EmergencyQueueRepo.
func (s *Store) ResolveEmergency(_ context.Context, id int64, status domain.EmergencyStatus, jobID *int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.emergencies[id]
	if !ok {
		return domain.ErrNotFound
	}
	if item.Status != domain.EmergencyPending {
		return domain.ErrVersionConflict
	}
	item.Status = status
	item.ResolvedAt = &at
	item.JobID = jobID
	s.emergencies[id] = item
	return nil
}

// UpdateEmergencyPriority реализует domain.EmergencyQueueRepo.
func (s *Store) UpdateEmergencyPriority(_ context.Context, id int64, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.emergencies[id]
	if !ok {
		return domain.ErrNotFound
	}
	if item.Status != domain.EmergencyPending {
		return domain.ErrVersionConflict
	}
	item.Priority = priority
	s.emergencies[id] = item
	return nil
}

// CreateJobIfAbsent реализует domain.PublishJobRepo.
func (s *Store) CreateJobIfAbsent(_ context.Context, job domain.PublishJob) (domain.PublishJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.ContentID == job.ContentID && existing.VersionNo == job.VersionNo && !existing.Status.Terminal() {
			return cloneJob(existing), false, nil
		}
	}
	if job.ID == 0 {
		job.ID = s.seq()
	}
	job.TargetPlatforms = clonePlatforms(job.TargetPlatforms)
	s.jobs[job.ID] = job
	return cloneJob(job), true, nil
}

// GetJob реализует domain.PublishJobRepo.
func (s *Store) GetJob(_ context.Context, id int64) (domain.PublishJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.PublishJob{}, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// ClaimDueJobs реализует domain.PublishJobRepo.
func (s *Store) ClaimDueJobs(_ context.Context, now time.Time, limit int) ([]domain.PublishJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.PublishJob
	for _, job := range s.jobs {
		if job.Status == domain.JobPending && !job.DueAt().After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]domain.PublishJob, 0, len(due))
	for _, job := range due {
		claimedAt := now
		job.Status = domain.JobProcessing
		job.ClaimedAt = &claimedAt
		job.UpdatedAt = now
		s.jobs[job.ID] = job
		out = append(out, cloneJob(job))
	}
	return out, nil
}

// FinishAttempt реализует domain.PublishJobRepo.
func (s *Store) FinishAttempt(_ context.Context, jobID int64, outcome domain.AttemptOutcome, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobProcessing {
		return domain.ErrClaimLost
	}
	job.Status = outcome.Status
	job.AttemptCount = outcome.AttemptCount
	job.NextRetryAt = outcome.NextRetryAt
	if outcome.ScheduledAt != nil {
		job.ScheduledAt = *outcome.ScheduledAt
	}
	job.LastError = outcome.LastError
	job.ClaimedAt = nil
	job.UpdatedAt = now
	s.jobs[jobID] = job
	return nil
}

// ReleaseStaleJobs реализует domain.PublishJobRepo.
func (s *Store) ReleaseStaleJobs(_ context.Context, claimedBefore, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := 0
	for id, job := range s.jobs {
		if job.Status == domain.JobProcessing && job.ClaimedAt != nil && job.ClaimedAt.Before(claimedBefore) {
			job.Status = domain.JobPending
			job.ClaimedAt = nil
			job.UpdatedAt = now
			s.jobs[id] = job
			released++
		}
	}
	return released, nil
}

// FailPendingJobs реализует domain.PublishJobRepo.
func (s *Store) FailPendingJobs(_ context.Context, contentID uuid.UUID, reason string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := 0
	for id, job := range s.jobs {
		if job.ContentID == contentID && job.Status == domain.JobPending {
			job.Status = domain.JobFailed
			job.LastError = reason
			job.NextRetryAt = nil
			job.UpdatedAt = now
			s.jobs[id] = job
			failed++
		}
	}
	return failed, nil
}

// ListJobsByContent реализует domain.PublishJobRepo.
func (s *Store) ListJobsByContent(_ context.Context, contentID uuid.UUID) ([]domain.PublishJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PublishJob
	for _, job := range s.jobs {
		if job.ContentID == contentID {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AppendChannelLog реализует domain.ChannelLogRepo.
func (s *Store) AppendChannelLog(_ context.Context, entry domain.ChannelPublishLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == 0 {
		entry.ID = s.seq()
	}
	s.logs = append(s.logs, entry)
	return nil
}

// ListChannelLogs реализует domain.ChannelLogRepo.
func (s *Store) ListChannelLogs(_ context.Context, jobID int64) ([]domain.ChannelPublishLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChannelPublishLog
	for _, entry := range s.logs {
		if entry.JobID == jobID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// SucceededChannels реализует domain.ChannelLogRepo.
func (s *Store) SucceededChannels(_ context.Context, jobID int64) ([]domain.Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Platform
	seen := map[domain.Platform]bool{}
	for _, entry := range s.logs {
		if entry.JobID == jobID && entry.Status == domain.ChannelLogSuccess && !seen[entry.Channel] {
			seen[entry.Channel] = true
			out = append(out, entry.Channel)
		}
	}
	return out, nil
}

// PlatformCounters реализует domain.ChannelLogRepo.
func (s *Store) PlatformCounters(_ context.Context, platform domain.Platform, dayStart time.Time) (domain.PlatformCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counters domain.PlatformCounters
	for _, entry := range s.logs {
		if entry.Channel != platform || entry.Status != domain.ChannelLogSuccess {
			continue
		}
		if !entry.CreatedAt.Before(dayStart) {
			counters.PublishedToday++
		}
		if counters.LastPublishedAt == nil || entry.CreatedAt.After(*counters.LastPublishedAt) {
			at := entry.CreatedAt
			counters.LastPublishedAt = &at
		}
	}
	return counters, nil
}

// GetPublished реализует domain.PublishedContentRepo.
func (s *Store) GetPublished(_ context.Context, contentID uuid.UUID) (domain.PublishedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.published[contentID]
	if !ok {
		return domain.PublishedContent{}, domain.ErrNotFound
	}
	return pc, nil
}

// EnsurePublished реализует domain.PublishedContentRepo.
func (s *Store) EnsurePublished(_ context.Context, pc domain.PublishedContent) (domain.PublishedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.published[pc.ContentID]
	if !ok {
		s.published[pc.ContentID] = pc
		return pc, nil
	}
	if pc.VersionNo > existing.VersionNo {
		existing.VersionNo = pc.VersionNo
	}
	existing.UpdatedAt = pc.UpdatedAt
	s.published[pc.ContentID] = existing
	return existing, nil
}

// MarkRetracted реализует domain.PublishedContentRepo.
func (s *Store) MarkRetracted(_ context.Context, contentID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.published[contentID]
	if !ok {
		return domain.ErrNotFound
	}
	pc.IsRetracted = true
	pc.UpdatedAt = at
	s.published[contentID] = pc
	return nil
}

func clonePlatforms(in []domain.Platform) []domain.Platform {
	if in == nil {
		return nil
	}
	return append([]domain.Platform(nil), in...)
}

func cloneJob(job domain.PublishJob) domain.PublishJob {
	job.TargetPlatforms = clonePlatforms(job.TargetPlatforms)
	return job
}
