package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/relay/models"
)

type threadFixture struct {
	db      *gorm.DB
	users   *UserService
	threads *ThreadService
	alice   *models.User
	bob     *models.User
}

func newThreadFixture(t *testing.T) *threadFixture {
	t.Helper()
	db := newTestDB(t)
	users := newTestUsers(t, db)
	threads := NewThreadService(db)
	threads.now = steppedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return &threadFixture{
		db:      db,
		users:   users,
		threads: threads,
		alice:   mustRegister(t, users, "alice", "a@x.com"),
		bob:     mustRegister(t, users, "bob", "b@x.com"),
	}
}

func (f *threadFixture) create(t *testing.T, creator *models.User, title string) *models.Thread {
	t.Helper()
	th, err := f.threads.Create(context.Background(), creator.ID, ThreadInput{Title: title, Description: "World"})
	require.NoError(t, err)
	return th
}

func TestThreadService_Create(t *testing.T) {
	f := newThreadFixture(t)

	th, err := f.threads.Create(context.Background(), f.alice.ID, ThreadInput{
		Title:       "  Hello  ",
		Description: "World",
		Tags:        []string{"go", " Go ", "", "forum"},
		Category:    "general",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", th.Title)
	assert.Equal(t, "World", th.Description)
	assert.Equal(t, models.StringList{"go", "forum"}, th.Tags)
	assert.Equal(t, "general", th.Category)
	assert.True(t, th.IsActive)
	assert.Equal(t, f.alice.ID, th.CreatedBy.ID)
	assert.Equal(t, "alice", th.CreatedBy.Username)
	assert.Equal(t, "First", th.CreatedBy.FirstName)
	assert.Equal(t, 0, th.VoteCount)
	assert.Equal(t, 0, th.ReplyCount)
	assert.Empty(t, th.Replies)
	assert.Empty(t, th.Votes)
	assert.False(t, th.CreatedAt.IsZero())
	assert.True(t, th.CreatedAt.Equal(th.UpdatedAt))
}

func TestThreadService_CreateValidation(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()

	manyTags := make([]string, MaxTags+1)
	for i := range manyTags {
		manyTags[i] = fmt.Sprintf("tag%d", i)
	}

	tests := []struct {
		name  string
		in    ThreadInput
		field string
	}{
		{"missing title", ThreadInput{Description: "d"}, "title"},
		{"long title", ThreadInput{Title: strings.Repeat("t", TitleMaxLen+1), Description: "d"}, "title"},
		{"missing description", ThreadInput{Title: "t", Description: "   "}, "description"},
		{"long description", ThreadInput{Title: "t", Description: strings.Repeat("d", DescriptionMaxLen+1)}, "description"},
		{"too many tags", ThreadInput{Title: "t", Description: "d", Tags: manyTags}, "tags"},
		{"long category", ThreadInput{Title: "t", Description: "d", Category: strings.Repeat("c", CategoryMaxLen+1)}, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.threads.Create(ctx, f.alice.ID, tt.in)
			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := f.threads.Create(ctx, f.alice.ID, ThreadInput{Title: "t", Description: "d", Tags: manyTags[:MaxTags]})
	assert.NoError(t, err)
}

func TestThreadService_ListNewestFirst(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()

	t1 := f.create(t, f.alice, "T1")
	t2 := f.create(t, f.bob, "T2")

	list, err := f.threads.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, t2.ID, list[0].ID)
	assert.Equal(t, t1.ID, list[1].ID)
	assert.Equal(t, "bob", list[0].CreatedBy.Username)
	assert.Equal(t, "alice", list[1].CreatedBy.Username)
}

func TestThreadService_ListSkipsInactive(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()

	keep := f.create(t, f.alice, "keep")
	hidden := f.create(t, f.alice, "hidden")
	require.NoError(t, f.db.Model(&models.Thread{}).Where("id = ?", hidden.ID).Update("is_active", false).Error)

	list, err := f.threads.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)

	_, err = f.threads.Get(ctx, hidden.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestThreadService_GetNotFound(t *testing.T) {
	f := newThreadFixture(t)
	_, err := f.threads.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestThreadService_UpdateByCreator(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()
	th := f.create(t, f.alice, "Hello")

	title := "Hello again"
	tags := []string{"news"}
	updated, err := f.threads.Update(ctx, th.ID, f.alice.ID, ThreadPatch{Title: &title, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "Hello again", updated.Title)
	assert.Equal(t, "World", updated.Description)
	assert.Equal(t, models.StringList{"news"}, updated.Tags)
	assert.True(t, updated.UpdatedAt.After(th.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(th.CreatedAt))
}

func TestThreadService_UpdateRules(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()
	th := f.create(t, f.alice, "Hello")

	title := "hijack"
	_, err := f.threads.Update(ctx, th.ID, f.bob.ID, ThreadPatch{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.threads.Update(ctx, th.ID+100, f.alice.ID, ThreadPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	empty := " "
	_, err = f.threads.Update(ctx, th.ID, f.alice.ID, ThreadPatch{Description: &empty})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestThreadService_Delete(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()
	th := f.create(t, f.alice, "Hello")
	_, err := f.threads.AddReply(ctx, th.ID, f.bob.ID, "hi")
	require.NoError(t, err)
	_, err = f.threads.CastVote(ctx, th.ID, f.bob.ID, models.Upvote)
	require.NoError(t, err)

	assert.ErrorIs(t, f.threads.Delete(ctx, th.ID, f.bob.ID), ErrForbidden)
	require.NoError(t, f.threads.Delete(ctx, th.ID, f.alice.ID))

	_, err = f.threads.Get(ctx, th.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.threads.Delete(ctx, th.ID, f.alice.ID), ErrNotFound)

	var replies, votes int64
	require.NoError(t, f.db.Model(&models.Reply{}).Where("thread_id = ?", th.ID).Count(&replies).Error)
	require.NoError(t, f.db.Model(&models.Vote{}).Where("thread_id = ?", th.ID).Count(&votes).Error)
	assert.Zero(t, replies)
	assert.Zero(t, votes)
}

func TestThreadService_AddReply(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()
	th := f.create(t, f.alice, "Hello")

	updated, err := f.threads.AddReply(ctx, th.ID, f.bob.ID, "  first!  ")
	require.NoError(t, err)
	updated, err = f.threads.AddReply(ctx, th.ID, f.alice.ID, "thanks")
	require.NoError(t, err)

	require.Len(t, updated.Replies, 2)
	assert.Equal(t, 2, updated.ReplyCount)
	assert.Equal(t, "first!", updated.Replies[0].Content)
	assert.Equal(t, "bob", updated.Replies[0].CreatedBy.Username)
	assert.Equal(t, "thanks", updated.Replies[1].Content)

	_, err = f.threads.AddReply(ctx, th.ID, f.bob.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.threads.AddReply(ctx, th.ID, f.bob.ID, strings.Repeat("r", ReplyMaxLen+1))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.threads.AddReply(ctx, th.ID+100, f.bob.ID, "hello?")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestThreadService_VoteTally(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()

	mixed := f.create(t, f.alice, "mixed")
	_, err := f.threads.CastVote(ctx, mixed.ID, f.alice.ID, models.Upvote)
	require.NoError(t, err)
	got, err := f.threads.CastVote(ctx, mixed.ID, f.bob.ID, models.Downvote)
	require.NoError(t, err)
	assert.Equal(t, 0, got.VoteCount)
	assert.Len(t, got.Votes, 2)

	ups := f.create(t, f.alice, "ups")
	_, err = f.threads.CastVote(ctx, ups.ID, f.alice.ID, models.Upvote)
	require.NoError(t, err)
	got, err = f.threads.CastVote(ctx, ups.ID, f.bob.ID, models.Upvote)
	require.NoError(t, err)
	assert.Equal(t, 2, got.VoteCount)
}

func TestThreadService_ReVoteReplacesInPlace(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()
	th := f.create(t, f.alice, "Hello")

	got, err := f.threads.CastVote(ctx, th.ID, f.bob.ID, models.Upvote)
	require.NoError(t, err)
	assert.Equal(t, 1, got.VoteCount)

	got, err = f.threads.CastVote(ctx, th.ID, f.bob.ID, models.Upvote)
	require.NoError(t, err)
	assert.Len(t, got.Votes, 1)
	assert.Equal(t, 1, got.VoteCount)

	got, err = f.threads.CastVote(ctx, th.ID, f.bob.ID, models.Downvote)
	require.NoError(t, err)
	require.Len(t, got.Votes, 1)
	assert.Equal(t, models.Downvote, got.Votes[0].Type)
	assert.Equal(t, -1, got.VoteCount)

	got, err = f.threads.RetractVote(ctx, th.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Votes)
	assert.Equal(t, 0, got.VoteCount)
}

func TestThreadService_ConcurrentVotesStaySingle(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()
	th := f.create(t, f.alice, "Hello")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vt := models.Upvote
			if i%2 == 1 {
				vt = models.Downvote
			}
			_, err := f.threads.CastVote(ctx, th.ID, f.bob.ID, vt)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var n int64
	require.NoError(t, f.db.Model(&models.Vote{}).Where("thread_id = ? AND user_id = ?", th.ID, f.bob.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestThreadService_VoteErrors(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()
	th := f.create(t, f.alice, "Hello")

	_, err := f.threads.CastVote(ctx, th.ID, f.bob.ID, "sideways")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.threads.CastVote(ctx, th.ID+100, f.bob.ID, models.Upvote)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.threads.RetractVote(ctx, th.ID+100, f.bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestThreadService_AcceptsTextAtLimit(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   ThreadInput
	}{
		{"apostrophes", ThreadInput{Title: strings.Repeat("'", 50) + strings.Repeat("a", TitleMaxLen-50), Description: "d"}},
		{"ampersands", ThreadInput{Title: strings.Repeat("&", TitleMaxLen), Description: strings.Repeat("a & b ", DescriptionMaxLen/6) + "ab"}},
		{"multibyte", ThreadInput{Title: strings.Repeat("é", TitleMaxLen), Description: strings.Repeat("日", DescriptionMaxLen)}},
		{"comparison", ThreadInput{Title: "a < b", Description: strings.Repeat("<", DescriptionMaxLen), Category: strings.Repeat("'", CategoryMaxLen)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, err := f.threads.Create(ctx, f.alice.ID, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.in.Title, th.Title)
			assert.Equal(t, tt.in.Description, th.Description)
			assert.Equal(t, tt.in.Category, th.Category)
		})
	}

	_, err := f.threads.Create(ctx, f.alice.ID, ThreadInput{Title: strings.Repeat("é", TitleMaxLen+1), Description: "d"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.threads.Create(ctx, f.alice.ID, ThreadInput{Title: "t", Description: "d", Category: strings.Repeat("&", CategoryMaxLen+1)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestThreadService_StoresPlainText(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()

	th, err := f.threads.Create(ctx, f.alice.ID, ThreadInput{
		Title:       "Tom's Q&A <b>x</b>",
		Description: "a < b",
		Tags:        []string{"Q&A", strings.Repeat("'", TagMaxLen)},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tom's Q&A x", th.Title)
	assert.Equal(t, "a < b", th.Description)
	assert.Equal(t, models.StringList{"Q&A", strings.Repeat("'", TagMaxLen)}, th.Tags)

	var stored models.Thread
	require.NoError(t, f.db.First(&stored, th.ID).Error)
	assert.Equal(t, "Tom's Q&A x", stored.Title)
	assert.Equal(t, "a < b", stored.Description)

	_, err = f.threads.Create(ctx, f.alice.ID, ThreadInput{Title: "<script>alert(1)</script>", Description: "d"})
	assert.ErrorIs(t, err, ErrValidation, "markup-only title is empty once stripped")
}

func TestThreadService_ReplyAtLimit(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()
	th := f.create(t, f.alice, "Hello")

	content := strings.Repeat("a & b ", 166) + "a's"
	require.Len(t, []rune(content), 999)
	got, err := f.threads.AddReply(ctx, th.ID, f.bob.ID, content)
	require.NoError(t, err)
	require.Len(t, got.Replies, 1)
	assert.Equal(t, content, got.Replies[0].Content)

	_, err = f.threads.AddReply(ctx, th.ID, f.bob.ID, strings.Repeat("ü", ReplyMaxLen))
	require.NoError(t, err)

	_, err = f.threads.AddReply(ctx, th.ID, f.bob.ID, strings.Repeat("'", ReplyMaxLen+1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestThreadService_WritesAfterDeleteLeaveNoOrphans(t *testing.T) {
	f := newThreadFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		th := f.create(t, f.alice, fmt.Sprintf("t%d", i))
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = f.threads.Delete(ctx, th.ID, f.alice.ID)
		}()
		go func() {
			defer wg.Done()
			_, err := f.threads.AddReply(ctx, th.ID, f.bob.ID, "late")
			if err != nil {
				assert.ErrorIs(t, err, ErrNotFound)
			}
		}()
		go func() {
			defer wg.Done()
			_, err := f.threads.CastVote(ctx, th.ID, f.bob.ID, models.Upvote)
			if err != nil {
				assert.ErrorIs(t, err, ErrNotFound)
			}
		}()
	}
	wg.Wait()

	var threads, replies, votes int64
	require.NoError(t, f.db.Model(&models.Thread{}).Count(&threads).Error)
	require.NoError(t, f.db.Model(&models.Reply{}).Count(&replies).Error)
	require.NoError(t, f.db.Model(&models.Vote{}).Count(&votes).Error)
	assert.Zero(t, threads)
	assert.Zero(t, replies)
	assert.Zero(t, votes)

	th := f.create(t, f.alice, "gone")
	require.NoError(t, f.threads.Delete(ctx, th.ID, f.alice.ID))
	_, err := f.threads.AddReply(ctx, th.ID, f.bob.ID, "late")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.threads.RetractVote(ctx, th.ID, f.bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
