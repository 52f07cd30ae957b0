package lambda

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"

	"github.com/treekit/arbor/cache"
	"github.com/treekit/arbor/models"
	"github.com/treekit/arbor/repository"
)

func setupHandler(t *testing.T) (*Handler, *repository.MockRepository) {
	t.Helper()

	repo := repository.NewMockRepository()
	assert.NoError(t, repo.Initialize(context.Background()))
	assert.NoError(t, cache.SetProvider(cache.NewMemoryCache()))

	t.Cleanup(func() {
		if err := repo.Cleanup(context.Background()); err != nil {
			t.Errorf("Failed to cleanup repository: %v", err)
		}
		cache.ResetProvider()
	})

	return NewHandler(repo), repo
}

func TestHandleGetTree(t *testing.T) {
	handler, repo := setupHandler(t)
	ctx := context.Background()

	root, err := repo.CreateNode(ctx, "root", nil)
	assert.NoError(t, err)
	_, err = repo.CreateNode(ctx, "child", &root)
	assert.NoError(t, err)

	response, err := handler.Handle(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/api/tree",
	})
	assert.NoError(t, err)
	assert.Equal(t, 200, response.StatusCode)

	var nodes []*models.Node
	assert.NoError(t, json.Unmarshal([]byte(response.Body), &nodes))
	assert.Len(t, nodes, 2)
	assert.Equal(t, "root", nodes[0].Label)
	assert.Equal(t, "root.child", nodes[1].Path)
}

func TestHandleGetTreeEmpty(t *testing.T) {
	handler, _ := setupHandler(t)

	response, err := handler.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/api/tree",
	})
	assert.NoError(t, err)
	assert.Equal(t, 404, response.StatusCode)
}

func TestHandleGetTreeBadQuery(t *testing.T) {
	handler, _ := setupHandler(t)

	response, err := handler.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            "GET",
		Path:                  "/api/tree",
		QueryStringParameters: map[string]string{"depth": "abc"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 400, response.StatusCode)
}

func TestHandleCreateNode(t *testing.T) {
	handler, repo := setupHandler(t)
	ctx := context.Background()

	response, err := handler.Handle(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Path:       "/api/tree",
		Body:       `{"label": "root"}`,
	})
	assert.NoError(t, err)
	assert.Equal(t, 201, response.StatusCode)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(response.Body), &body))
	id := int64(body["id"].(float64))

	node, err := repo.GetNode(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, "root", node.Label)

	// Invalid payloads
	response, err = handler.Handle(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Path:       "/api/tree",
		Body:       `{"label": ""}`,
	})
	assert.NoError(t, err)
	assert.Equal(t, 400, response.StatusCode)

	// Unknown parent
	response, err = handler.Handle(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Path:       "/api/tree",
		Body:       `{"label": "orphan", "parentId": 999}`,
	})
	assert.NoError(t, err)
	assert.Equal(t, 404, response.StatusCode)
}

func TestHandleRebuild(t *testing.T) {
	handler, repo := setupHandler(t)
	ctx := context.Background()

	root, err := repo.CreateNode(ctx, "root", nil)
	assert.NoError(t, err)
	beta, err := repo.CreateNode(ctx, "beta", &root)
	assert.NoError(t, err)
	alpha, err := repo.CreateNode(ctx, "alpha", &root)
	assert.NoError(t, err)

	response, err := handler.Handle(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Path:       "/api/tree/rebuild",
		Body:       `{"sorted": true}`,
	})
	assert.NoError(t, err)
	assert.Equal(t, 200, response.StatusCode)

	a, err := repo.GetNode(ctx, alpha)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), a.Lft)
	b, err := repo.GetNode(ctx, beta)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), b.Lft)
}

func TestHandleUnknownRoute(t *testing.T) {
	handler, _ := setupHandler(t)

	response, err := handler.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "DELETE",
		Path:       "/api/unknown",
	})
	assert.NoError(t, err)
	assert.Equal(t, 404, response.StatusCode)
}
