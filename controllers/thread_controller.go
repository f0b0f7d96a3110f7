package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/relay/models"
	"github.com/cppla/relay/services"
	"github.com/cppla/relay/utils"
)

// ThreadStore is the thread aggregate as seen by the HTTP layer.
type ThreadStore interface {
	Create(ctx context.Context, creatorID uint, in services.ThreadInput) (*models.Thread, error)
	List(ctx context.Context) ([]models.Thread, error)
	Get(ctx context.Context, id uint) (*models.Thread, error)
	Update(ctx context.Context, id, actorID uint, patch services.ThreadPatch) (*models.Thread, error)
	Delete(ctx context.Context, id, actorID uint) error
	AddReply(ctx context.Context, threadID, authorID uint, content string) (*models.Thread, error)
	CastVote(ctx context.Context, threadID, voterID uint, voteType models.VoteType) (*models.Thread, error)
	RetractVote(ctx context.Context, threadID, voterID uint) (*models.Thread, error)
}

// ThreadController manages threads, their replies and votes.
type ThreadController struct {
	threads ThreadStore
}

// NewThreadController creates a new ThreadController instance.
func NewThreadController(threads ThreadStore) *ThreadController {
	return &ThreadController{threads: threads}
}

// ListThreads returns all active threads, newest first.
func (t *ThreadController) ListThreads(ctx *gin.Context) {
	threads, err := t.threads.List(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "thread")
		return
	}
	utils.Success(ctx, gin.H{"threads": threads, "count": len(threads)})
}

// CreateThread stores a new thread owned by the caller.
func (t *ThreadController) CreateThread(ctx *gin.Context) {
	var req struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
		Category    string   `json:"category"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badPayload(ctx)
		return
	}

	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	thread, err := t.threads.Create(ctx.Request.Context(), userID, services.ThreadInput{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		Category:    req.Category,
	})
	if err != nil {
		respondError(ctx, err, "thread")
		return
	}
	utils.Respond(ctx, http.StatusCreated, gin.H{"thread": thread})
}

// GetThread returns a single thread with replies and votes.
func (t *ThreadController) GetThread(ctx *gin.Context) {
	id, ok := threadIDParam(ctx)
	if !ok {
		return
	}
	thread, err := t.threads.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, "thread")
		return
	}
	utils.Success(ctx, gin.H{"thread": thread})
}

// UpdateThread applies a partial update. Only the creator may edit.
func (t *ThreadController) UpdateThread(ctx *gin.Context) {
	id, ok := threadIDParam(ctx)
	if !ok {
		return
	}
	var req struct {
		Title       *string   `json:"title"`
		Description *string   `json:"description"`
		Tags        *[]string `json:"tags"`
		Category    *string   `json:"category"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badPayload(ctx)
		return
	}

	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	thread, err := t.threads.Update(ctx.Request.Context(), id, userID, services.ThreadPatch{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		Category:    req.Category,
	})
	if err != nil {
		respondError(ctx, err, "thread")
		return
	}
	utils.Success(ctx, gin.H{"thread": thread})
}

// DeleteThread removes a thread. Only the creator may delete.
func (t *ThreadController) DeleteThread(ctx *gin.Context) {
	id, ok := threadIDParam(ctx)
	if !ok {
		return
	}
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	if err := t.threads.Delete(ctx.Request.Context(), id, userID); err != nil {
		respondError(ctx, err, "thread")
		return
	}
	utils.Success(ctx, gin.H{"message": "thread deleted"})
}

// CreateReply appends a reply to the thread named in the path.
func (t *ThreadController) CreateReply(ctx *gin.Context) {
	id, ok := threadIDParam(ctx)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badPayload(ctx)
		return
	}
	t.reply(ctx, id, req.Content)
}

// CreateComment is CreateReply with the thread id carried in the body.
func (t *ThreadController) CreateComment(ctx *gin.Context) {
	var req struct {
		ThreadID uint   `json:"threadId" binding:"required"`
		Content  string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "threadId and content are required")
		return
	}
	t.reply(ctx, req.ThreadID, req.Content)
}

func (t *ThreadController) reply(ctx *gin.Context, threadID uint, content string) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	thread, err := t.threads.AddReply(ctx.Request.Context(), threadID, userID, content)
	if err != nil {
		respondError(ctx, err, "thread")
		return
	}
	utils.Respond(ctx, http.StatusCreated, gin.H{"thread": thread})
}

// CastVote records the caller's up- or downvote. Re-voting replaces the previous vote.
func (t *ThreadController) CastVote(ctx *gin.Context) {
	id, ok := threadIDParam(ctx)
	if !ok {
		return
	}
	var req struct {
		Type models.VoteType `json:"type"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badPayload(ctx)
		return
	}
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	thread, err := t.threads.CastVote(ctx.Request.Context(), id, userID, req.Type)
	if err != nil {
		respondError(ctx, err, "thread")
		return
	}
	utils.Success(ctx, gin.H{"thread": thread})
}

// RetractVote removes the caller's vote.
func (t *ThreadController) RetractVote(ctx *gin.Context) {
	id, ok := threadIDParam(ctx)
	if !ok {
		return
	}
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	thread, err := t.threads.RetractVote(ctx.Request.Context(), id, userID)
	if err != nil {
		respondError(ctx, err, "thread")
		return
	}
	utils.Success(ctx, gin.H{"thread": thread})
}

// threadIDParam parses :id. Anything that is not a positive integer cannot name a thread.
func threadIDParam(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(ctx, services.ErrNotFound, "thread")
		return 0, false
	}
	return uint(id), true
}
