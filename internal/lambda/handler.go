package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/treekit/arbor/cache"
	"github.com/treekit/arbor/models"
	"github.com/treekit/arbor/repository"

	"github.com/aws/aws-lambda-go/events"
)

// Handler represents the Lambda handler with its dependencies
type Handler struct {
	repo repository.Repository
}

// NewHandler creates a new Handler with the given repository
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{
		repo: repo,
	}
}

// Handle processes API Gateway events
func (h *Handler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	// Route the request based on HTTP method and path
	switch {
	case request.HTTPMethod == "GET" && request.Path == "/api/tree":
		return h.handleGetTree(ctx, request)
	case request.HTTPMethod == "POST" && request.Path == "/api/tree":
		return h.handleCreateNode(ctx, request)
	case request.HTTPMethod == "POST" && request.Path == "/api/tree/rebuild":
		return h.handleRebuild(ctx, request)
	default:
		return events.APIGatewayProxyResponse{
			StatusCode: 404,
			Body:       `{"error": "Not found"}`,
		}, nil
	}
}

func jsonResponse(status int, payload interface{}) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: 500,
			Body:       fmt.Sprintf(`{"error": "Failed to marshal response: %v"}`, err),
		}, nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
	}, nil
}

func errorResponse(status int, message string) (events.APIGatewayProxyResponse, error) {
	return jsonResponse(status, map[string]string{"error": message})
}

// queryInt64 parses an optional non-negative integer query parameter
func queryInt64(request events.APIGatewayProxyRequest, name string) (int64, error) {
	raw := request.QueryStringParameters[name]
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return value, nil
}

func (h *Handler) handleGetTree(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	root, err := queryInt64(request, "root")
	if err != nil {
		return errorResponse(400, err.Error())
	}
	depth, err := queryInt64(request, "depth")
	if err != nil {
		return errorResponse(400, err.Error())
	}
	sorted := request.QueryStringParameters["sort"] == "true"

	key := cache.SubtreeKey{Root: root, Depth: depth, Sorted: sorted}

	// Try to get from cache first
	if cached, found := cache.GetSubtree(key); found {
		if len(cached.Data) == 0 {
			return errorResponse(404, "tree not found")
		}
		return jsonResponse(200, cached.Data)
	}

	// If not in cache, read from the repository
	nodes, err := h.repo.GetTree(ctx, root, depth, sorted)
	if err != nil {
		if errors.Is(err, repository.ErrNodeNotFound) {
			return errorResponse(404, "node not found")
		}
		return errorResponse(500, err.Error())
	}

	if len(nodes) == 0 {
		return errorResponse(404, "tree not found")
	}

	modelNodes := make([]*models.Node, len(nodes))
	for i, node := range nodes {
		modelNodes[i] = &models.Node{
			ID:       node.ID,
			Label:    node.Label,
			ParentID: node.ParentID,
			Lft:      node.Lft,
			Rgt:      node.Rgt,
			Depth:    node.Depth,
			Path:     node.Path,
		}
	}

	// Store in cache
	cache.SetSubtree(key, &cache.TreeResponse{Data: modelNodes})

	return jsonResponse(200, modelNodes)
}

func (h *Handler) handleCreateNode(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.CreateNodeRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return errorResponse(400, fmt.Sprintf("Invalid request: %v", err))
	}

	// Validate the request
	if err := req.Validate(); err != nil {
		return errorResponse(400, err.Error())
	}

	// Create the node
	var parentID *int64
	if req.ParentID > 0 {
		parentID = &req.ParentID
	}
	id, err := h.repo.CreateNode(ctx, req.Label, parentID)
	if err != nil {
		if errors.Is(err, repository.ErrNodeNotFound) {
			return errorResponse(404, "parent node not found")
		}
		return errorResponse(500, err.Error())
	}

	// Invalidate cache
	cache.InvalidateCache()

	return jsonResponse(201, map[string]interface{}{
		"id":       id,
		"label":    req.Label,
		"parentId": req.ParentID,
	})
}

func (h *Handler) handleRebuild(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.RebuildRequest
	if request.Body != "" {
		if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
			return errorResponse(400, fmt.Sprintf("Invalid request: %v", err))
		}
	}

	if err := h.repo.Rebuild(ctx, req.Sorted); err != nil {
		return errorResponse(500, err.Error())
	}

	cache.InvalidateCache()

	return jsonResponse(200, map[string]interface{}{"sorted": req.Sorted})
}
