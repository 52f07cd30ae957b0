package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/treekit/arbor/cache"
	"github.com/treekit/arbor/models"
	"github.com/treekit/arbor/nestedset"
	"github.com/treekit/arbor/repository"

	"github.com/gin-gonic/gin"
)

// TreeHandler handles tree-related HTTP requests
type TreeHandler struct {
	repo repository.Repository
}

// NewTreeHandler creates a new TreeHandler instance
func NewTreeHandler(repo repository.Repository) *TreeHandler {
	return &TreeHandler{
		repo: repo,
	}
}

// RegisterRoutes wires the tree endpoints onto the given router group
func (h *TreeHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/tree", h.GetTree)
	r.POST("/tree", h.CreateNode)
	r.POST("/tree/rebuild", h.Rebuild)
	r.PUT("/tree/:id/move", h.MoveNode)
	r.DELETE("/tree/:id", h.DeleteNode)
	r.GET("/tree/:id/ancestors", h.GetAncestors)
	r.GET("/tree/:id/children", h.GetChildren)
	r.GET("/tree/:id/descendants", h.GetDescendants)
}

func toModel(n *repository.Node) *models.Node {
	return &models.Node{
		ID:       n.ID,
		Label:    n.Label,
		ParentID: n.ParentID,
		Lft:      n.Lft,
		Rgt:      n.Rgt,
		Depth:    n.Depth,
		Path:     n.Path,
	}
}

func toModels(nodes []*repository.Node) []*models.Node {
	out := make([]*models.Node, len(nodes))
	for i, n := range nodes {
		out[i] = toModel(n)
	}
	return out
}

// pathID parses the :id path parameter
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node id"})
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional non-negative integer query parameter
func queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return 0, false
	}
	return value, true
}

// handleRepoError maps repository errors onto HTTP status codes
func handleRepoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
	case errors.Is(err, nestedset.ErrMoveIntoSubtree):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetTree returns the subtree rooted at the requested node in preorder,
// each node annotated with its depth and label path. With no root parameter
// it returns every tree in the table. Results are cached per query shape.
func (h *TreeHandler) GetTree(c *gin.Context) {
	root, ok := queryInt64(c, "root")
	if !ok {
		return
	}
	depth, ok := queryInt64(c, "depth")
	if !ok {
		return
	}
	sorted := c.Query("sort") == "true"
	render := c.Query("render") == "true"

	key := cache.SubtreeKey{Root: root, Depth: depth, Sorted: sorted}

	// Try to get from cache first
	if cached, found := cache.GetSubtree(key); found {
		h.writeTree(c, cached, render)
		return
	}

	ctx := c.Request.Context()
	nodes, err := h.repo.GetTree(ctx, root, depth, sorted)
	if err != nil {
		handleRepoError(c, err)
		return
	}

	response := &cache.TreeResponse{Data: toModels(nodes)}
	if rendered, err := h.repo.Visualise(ctx, root, depth, sorted); err == nil {
		response.Rendered = rendered
	}

	cache.SetSubtree(key, response)

	h.writeTree(c, response, render)
}

func (h *TreeHandler) writeTree(c *gin.Context, response *cache.TreeResponse, render bool) {
	if len(response.Data) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "tree not found"})
		return
	}
	if render {
		c.JSON(http.StatusOK, gin.H{"data": response.Data, "rendered": response.Rendered})
		return
	}
	c.JSON(http.StatusOK, response.Data)
}

// CreateNode creates a new node in the tree
func (h *TreeHandler) CreateNode(c *gin.Context) {
	var req models.CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Validate the request
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var parentID *int64
	if req.ParentID > 0 {
		parentID = &req.ParentID
		// Check if parent exists
		_, err := h.repo.GetNode(ctx, *parentID)
		if err != nil {
			if errors.Is(err, repository.ErrNodeNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "parent node not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	// Create node using repository
	id, err := h.repo.CreateNode(ctx, req.Label, parentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Invalidate cache since we modified the tree
	cache.InvalidateCache()

	c.JSON(http.StatusCreated, gin.H{
		"id":       id,
		"label":    req.Label,
		"parentId": parentID,
	})
}

// MoveNode relocates a node's subtree under a new parent
func (h *TreeHandler) MoveNode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req models.MoveNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.repo.MoveNode(ctx, id, req.ParentID); err != nil {
		handleRepoError(c, err)
		return
	}

	cache.InvalidateCache()

	c.JSON(http.StatusOK, gin.H{
		"id":       id,
		"parentId": req.ParentID,
	})
}

// DeleteNode removes a node and its entire subtree
func (h *TreeHandler) DeleteNode(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.repo.DeleteNode(ctx, id); err != nil {
		handleRepoError(c, err)
		return
	}

	cache.InvalidateCache()

	c.Status(http.StatusNoContent)
}

// Rebuild recomputes every boundary index from parent references
func (h *TreeHandler) Rebuild(c *gin.Context) {
	var req models.RebuildRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	if err := h.repo.Rebuild(ctx, req.Sorted); err != nil {
		handleRepoError(c, err)
		return
	}

	cache.InvalidateCache()

	c.JSON(http.StatusOK, gin.H{"sorted": req.Sorted})
}

// GetAncestors returns the chain of nodes containing the given node,
// root first
func (h *TreeHandler) GetAncestors(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	nodes, err := h.repo.GetAncestors(ctx, id)
	if err != nil {
		handleRepoError(c, err)
		return
	}

	c.JSON(http.StatusOK, toModels(nodes))
}

// GetChildren returns the direct children of the given node
func (h *TreeHandler) GetChildren(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	nodes, err := h.repo.GetChildren(ctx, id)
	if err != nil {
		handleRepoError(c, err)
		return
	}

	c.JSON(http.StatusOK, toModels(nodes))
}

// GetDescendants returns the given node's subtree in preorder, the node
// itself excluded. Depths are relative to the node unless absolute=true.
func (h *TreeHandler) GetDescendants(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	absolute := c.Query("absolute") == "true"

	ctx := c.Request.Context()
	nodes, err := h.repo.GetDescendants(ctx, id, absolute)
	if err != nil {
		handleRepoError(c, err)
		return
	}

	c.JSON(http.StatusOK, toModels(nodes))
}
