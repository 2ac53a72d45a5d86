package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/soulnet-app/soulnet/internal/models"
)

const (
	defaultPostLimit = 20
	maxPostLimit     = 100
)

// CreatePostRequest represents a new article
type CreatePostRequest struct {
	Title         string `json:"title" binding:"required,max=200"`
	Content       string `json:"content" binding:"max=100000"`
	CoverImageURL string `json:"cover_image_url" binding:"omitempty,max=2048"`
}

// UpdatePostRequest is a partial article update
type UpdatePostRequest struct {
	Title         *string `json:"title" binding:"omitempty,min=1,max=200"`
	Content       *string `json:"content" binding:"omitempty,max=100000"`
	CoverImageURL *string `json:"cover_image_url" binding:"omitempty,max=2048"`
}

// PostResponse is a post with its author's public identity
type PostResponse struct {
	models.Post
	AuthorName string `json:"author_name"`
}

func toPostResponse(p models.Post) PostResponse {
	resp := PostResponse{Post: p}
	if p.Author != nil {
		resp.AuthorName = p.Author.DisplayName
		if resp.AuthorName == "" {
			resp.AuthorName = p.Author.Email
		}
	}
	resp.Post.Author = nil
	return resp
}

// @Summary List posts
// @Tags posts
// @Produce json
// @Param limit query int false "Maximum number of posts"
// @Success 200 {array} PostResponse
// @Router /api/posts [get]
func (s *Server) listPosts(c *gin.Context) {
	limit := defaultPostLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errorJSON(c, http.StatusBadRequest, codeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPostLimit)
	}

	query := s.db.Preload("Author").Order("created_at DESC").Limit(limit)
	if author := c.Query("author"); author != "" {
		query = query.Where("author_id = ?", author)
	}

	var posts []models.Post
	if err := query.Find(&posts).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list posts")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	resp := make([]PostResponse, len(posts))
	for i, p := range posts {
		resp[i] = toPostResponse(p)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPost(c *gin.Context) {
	var post models.Post
	if err := models.FindByIDWithPreload(s.db, c.Param("id"), &post, "Author"); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errorJSON(c, http.StatusNotFound, codeNotFound, "Post not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to load post")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, toPostResponse(post))
}

func (s *Server) createPost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	sessionData, _ := GetSessionData(c)
	post := &models.Post{
		AuthorID:      sessionData.UserID,
		Title:         req.Title,
		Content:       req.Content,
		CoverImageURL: req.CoverImageURL,
	}
	if err := s.db.Create(post).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create post")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to create post")
		return
	}

	s.logger.Info().Str("post_id", post.ID).Str("author_id", post.AuthorID).Msg("Post created")
	c.JSON(http.StatusCreated, toPostResponse(*post))
}

// updatePost is restricted to the post's author.
func (s *Server) updatePost(c *gin.Context) {
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	var post models.Post
	if err := models.FindByID(s.db, c.Param("id"), &post); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errorJSON(c, http.StatusNotFound, codeNotFound, "Post not found")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to load post")
		errorJSON(c, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	sessionData, _ := GetSessionData(c)
	if post.AuthorID != sessionData.UserID {
		errorJSON(c, http.StatusForbidden, codeForbidden, "Only the author can edit this post")
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
		post.Title = *req.Title
	}
	if req.Content != nil {
		updates["content"] = *req.Content
		post.Content = *req.Content
	}
	if req.CoverImageURL != nil {
		updates["cover_image_url"] = *req.CoverImageURL
		post.CoverImageURL = *req.CoverImageURL
	}
	if len(updates) > 0 {
		if err := s.db.Model(&post).Updates(updates).Error; err != nil {
			s.logger.Error().Err(err).Msg("Failed to update post")
			errorJSON(c, http.StatusInternalServerError, codeInternal, "Failed to update post")
			return
		}
	}

	c.JSON(http.StatusOK, toPostResponse(post))
}
