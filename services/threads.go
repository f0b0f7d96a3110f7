package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/relay/models"
	"github.com/cppla/relay/utils"
)

// Field limits for threads and replies.
const (
	TitleMaxLen       = 200
	DescriptionMaxLen = 2000
	CategoryMaxLen    = 50
	MaxTags           = 10
	TagMaxLen         = 50
	ReplyMaxLen       = 1000
)

// ThreadInput carries the fields accepted when creating a thread.
type ThreadInput struct {
	Title       string
	Description string
	Tags        []string
	Category    string
}

// ThreadPatch is a partial update; nil fields are left untouched.
type ThreadPatch struct {
	Title       *string
	Description *string
	Tags        *[]string
	Category    *string
}

// ThreadService owns threads together with their replies and votes.
type ThreadService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewThreadService creates a ThreadService backed by db.
func NewThreadService(db *gorm.DB) *ThreadService {
	return &ThreadService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates and stores a new active thread with no replies or votes.
func (s *ThreadService) Create(ctx context.Context, creatorID uint, in ThreadInput) (*models.Thread, error) {
	title, err := cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}
	description, err := cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}
	tags, err := cleanTags(in.Tags)
	if err != nil {
		return nil, err
	}
	category, err := cleanCategory(in.Category)
	if err != nil {
		return nil, err
	}

	now := s.now()
	thread := models.Thread{
		Title:       title,
		Description: description,
		Tags:        tags,
		Category:    category,
		CreatedByID: creatorID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&thread).Error; err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return s.Get(ctx, thread.ID)
}

// List returns every active thread, newest first, with creators resolved and counters filled.
func (s *ThreadService) List(ctx context.Context) ([]models.Thread, error) {
	var threads []models.Thread
	err := s.withRelations(s.db.WithContext(ctx)).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Order("id DESC").
		Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	for i := range threads {
		threads[i].Annotate()
	}
	return threads, nil
}

// Get returns one active thread or ErrNotFound.
func (s *ThreadService) Get(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	err := s.withRelations(s.db.WithContext(ctx)).
		Where("is_active = ?", true).
		First(&thread, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load thread %d: %w", id, err)
	}
	thread.Annotate()
	return &thread, nil
}

// Update applies patch on behalf of actorID, who must be the thread's creator.
func (s *ThreadService) Update(ctx context.Context, id, actorID uint, patch ThreadPatch) (*models.Thread, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.owned(tx, id, actorID); err != nil {
			return err
		}
		changes, err := s.patchColumns(patch)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Thread{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return fmt.Errorf("update thread %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *ThreadService) patchColumns(patch ThreadPatch) (map[string]interface{}, error) {
	changes := map[string]interface{}{}
	if patch.Title != nil {
		v, err := cleanTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		changes["title"] = v
	}
	if patch.Description != nil {
		v, err := cleanDescription(*patch.Description)
		if err != nil {
			return nil, err
		}
		changes["description"] = v
	}
	if patch.Tags != nil {
		v, err := cleanTags(*patch.Tags)
		if err != nil {
			return nil, err
		}
		changes["tags"] = v
	}
	if patch.Category != nil {
		v, err := cleanCategory(*patch.Category)
		if err != nil {
			return nil, err
		}
		changes["category"] = v
	}
	changes["updated_at"] = s.now()
	return changes, nil
}

// Delete removes a thread with its replies and votes. Only the creator may delete.
func (s *ThreadService) Delete(ctx context.Context, id, actorID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.owned(tx, id, actorID); err != nil {
			return err
		}
		if err := tx.Where("thread_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
			return fmt.Errorf("delete votes of thread %d: %w", id, err)
		}
		if err := tx.Where("thread_id = ?", id).Delete(&models.Reply{}).Error; err != nil {
			return fmt.Errorf("delete replies of thread %d: %w", id, err)
		}
		if err := tx.Delete(&models.Thread{}, id).Error; err != nil {
			return fmt.Errorf("delete thread %d: %w", id, err)
		}
		return nil
	})
}

// AddReply appends a reply by authorID and returns the updated thread.
func (s *ThreadService) AddReply(ctx context.Context, threadID, authorID uint, content string) (*models.Thread, error) {
	content = utils.CleanText(content)
	if content == "" {
		return nil, invalid("content", "reply content is required")
	}
	if utf8.RuneCountInString(content) > ReplyMaxLen {
		return nil, invalid("content", "reply must be less than %d characters", ReplyMaxLen)
	}

	now := s.now()
	reply := models.Reply{
		ThreadID:    threadID,
		Content:     content,
		CreatedByID: authorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockActive(tx, threadID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&reply).Error; err != nil {
			return fmt.Errorf("create reply: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, threadID)
}

// CastVote records voterID's vote. A voter holds at most one vote per thread:
// voting again with the same type changes nothing, voting the other way flips it.
// The write is a single upsert on the (thread_id, user_id) unique index.
func (s *ThreadService) CastVote(ctx context.Context, threadID, voterID uint, voteType models.VoteType) (*models.Thread, error) {
	if !voteType.Valid() {
		return nil, invalid("type", "vote type must be %q or %q", models.Upvote, models.Downvote)
	}

	now := s.now()
	vote := models.Vote{
		ThreadID:  threadID,
		UserID:    voterID,
		Type:      voteType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockActive(tx, threadID); err != nil {
			return err
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "thread_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "updated_at"}),
		}).Create(&vote).Error
		if err != nil {
			return fmt.Errorf("cast vote: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, threadID)
}

// RetractVote removes voterID's vote if present and returns the updated thread.
func (s *ThreadService) RetractVote(ctx context.Context, threadID, voterID uint) (*models.Thread, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockActive(tx, threadID); err != nil {
			return err
		}
		if err := tx.Where("thread_id = ? AND user_id = ?", threadID, voterID).Delete(&models.Vote{}).Error; err != nil {
			return fmt.Errorf("retract vote: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, threadID)
}

func (s *ThreadService) withRelations(db *gorm.DB) *gorm.DB {
	summary := func(tx *gorm.DB) *gorm.DB {
		return tx.Select("id", "username", "first_name", "last_name")
	}
	return db.
		Preload("CreatedBy", summary).
		Preload("Replies", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC").Order("id ASC") }).
		Preload("Replies.CreatedBy", summary).
		Preload("Votes")
}

// lockActive takes a row lock on an active thread for the rest of tx, so replies and
// votes cannot be written against a thread that a concurrent Delete is removing.
func (s *ThreadService) lockActive(tx *gorm.DB, id uint) error {
	var thread models.Thread
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("is_active = ?", true).
		First(&thread, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("lock thread %d: %w", id, err)
	}
	return nil
}

func (s *ThreadService) owned(db *gorm.DB, id, actorID uint) (*models.Thread, error) {
	var thread models.Thread
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("is_active = ?", true).First(&thread, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load thread %d: %w", id, err)
	}
	if thread.CreatedByID != actorID {
		return nil, ErrForbidden
	}
	return &thread, nil
}

func cleanTitle(v string) (string, error) {
	v = utils.CleanText(v)
	if v == "" {
		return "", invalid("title", "title is required")
	}
	if utf8.RuneCountInString(v) > TitleMaxLen {
		return "", invalid("title", "title must be less than %d characters", TitleMaxLen)
	}
	return v, nil
}

func cleanDescription(v string) (string, error) {
	v = utils.CleanText(v)
	if v == "" {
		return "", invalid("description", "description is required")
	}
	if utf8.RuneCountInString(v) > DescriptionMaxLen {
		return "", invalid("description", "description must be less than %d characters", DescriptionMaxLen)
	}
	return v, nil
}

func cleanCategory(v string) (string, error) {
	v = utils.CleanText(v)
	if utf8.RuneCountInString(v) > CategoryMaxLen {
		return "", invalid("category", "category must be less than %d characters", CategoryMaxLen)
	}
	return v, nil
}

// cleanTags trims, sanitizes and de-duplicates tags, keeping first-seen order.
func cleanTags(in []string) (models.StringList, error) {
	out := models.StringList{}
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		tag := utils.CleanText(raw)
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > TagMaxLen {
			return nil, invalid("tags", "tag %q must be less than %d characters", strings.TrimSpace(raw), TagMaxLen)
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	if len(out) > MaxTags {
		return nil, invalid("tags", "cannot have more than %d tags", MaxTags)
	}
	return out, nil
}
