package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/treekit/arbor/cache"
	"github.com/treekit/arbor/models"
	"github.com/treekit/arbor/repository"
)

func setupTest(t *testing.T) (*gin.Engine, *repository.MockRepository, map[string]int64) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// Create mock repository
	repo := repository.NewMockRepository()
	assert.NoError(t, repo.Initialize(context.Background()))

	// Initialize cache with memory provider
	assert.NoError(t, cache.SetProvider(cache.NewMemoryCache()))

	t.Cleanup(func() {
		if err := repo.Cleanup(context.Background()); err != nil {
			t.Errorf("Failed to cleanup repository: %v", err)
		}
		cache.ResetProvider()
	})

	router := gin.New()
	NewTreeHandler(repo).RegisterRoutes(router.Group("/api"))

	// Build the working example:
	//
	//	A
	//	|-- B
	//	|-- |-- C
	//	|-- D
	//	|-- |-- E
	ids := make(map[string]int64)
	create := func(label, parent string) {
		var parentID *int64
		if parent != "" {
			pid := ids[parent]
			parentID = &pid
		}
		id, err := repo.CreateNode(context.Background(), label, parentID)
		assert.NoError(t, err)
		ids[label] = id
	}
	create("A", "")
	create("B", "A")
	create("C", "B")
	create("D", "A")
	create("E", "D")

	return router, repo, ids
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeNodes(t *testing.T, w *httptest.ResponseRecorder) []*models.Node {
	t.Helper()
	var nodes []*models.Node
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &nodes))
	return nodes
}

func nodePaths(nodes []*models.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Path
	}
	return out
}

func TestGetTree(t *testing.T) {
	router, _, ids := setupTest(t)

	w := doRequest(router, "GET", "/api/tree", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	nodes := decodeNodes(t, w)
	assert.Equal(t, []string{"A", "A.B", "A.B.C", "A.D", "A.D.E"}, nodePaths(nodes))

	// Subtree read
	w = doRequest(router, "GET", fmt.Sprintf("/api/tree?root=%d", ids["D"]), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	nodes = decodeNodes(t, w)
	assert.Equal(t, []string{"D", "D.E"}, nodePaths(nodes))

	// Depth limit
	w = doRequest(router, "GET", "/api/tree?depth=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	nodes = decodeNodes(t, w)
	assert.Equal(t, []string{"A"}, nodePaths(nodes))

	// Missing root
	w = doRequest(router, "GET", "/api/tree?root=999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed parameters
	w = doRequest(router, "GET", "/api/tree?root=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(router, "GET", "/api/tree?depth=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTreeRendered(t *testing.T) {
	router, _, _ := setupTest(t)

	w := doRequest(router, "GET", "/api/tree?render=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "A\n|-- B\n|-- |-- C\n|-- D\n|-- |-- E", response["rendered"])
	assert.Len(t, response["data"], 5)
}

func TestGetTreeCaching(t *testing.T) {
	router, _, _ := setupTest(t)

	mockCache := cache.NewMockCache()
	assert.NoError(t, cache.SetProvider(mockCache))

	// First read misses and fills the cache, second is served from it
	w := doRequest(router, "GET", "/api/tree", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doRequest(router, "GET", "/api/tree", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	get, set, _, _, _ := mockCache.GetCallCounts()
	assert.Equal(t, 2, get)
	assert.Equal(t, 1, set)

	// Writes invalidate
	w = doRequest(router, "POST", "/api/tree", models.CreateNodeRequest{Label: "F"})
	assert.Equal(t, http.StatusCreated, w.Code)
	_, _, invalidate, _, _ := mockCache.GetCallCounts()
	assert.Equal(t, 1, invalidate)
}

func TestCreateNode(t *testing.T) {
	router, repo, ids := setupTest(t)

	w := doRequest(router, "POST", "/api/tree", models.CreateNodeRequest{
		Label:    "F",
		ParentID: ids["B"],
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "F", response["label"])

	id := int64(response["id"].(float64))
	node, err := repo.GetNode(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, "F", node.Label)
	if assert.NotNil(t, node.ParentID) {
		assert.Equal(t, ids["B"], *node.ParentID)
	}

	// Validation failures
	w = doRequest(router, "POST", "/api/tree", models.CreateNodeRequest{Label: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown parent
	w = doRequest(router, "POST", "/api/tree", models.CreateNodeRequest{
		Label:    "orphan",
		ParentID: 999,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMoveNode(t *testing.T) {
	router, repo, ids := setupTest(t)

	w := doRequest(router, "PUT", fmt.Sprintf("/api/tree/%d/move", ids["B"]),
		models.MoveNodeRequest{ParentID: ids["D"]})
	assert.Equal(t, http.StatusOK, w.Code)

	nodes, err := repo.GetTree(context.Background(), 0, 0, false)
	assert.NoError(t, err)
	got := make([]string, len(nodes))
	for i, n := range nodes {
		got[i] = n.Path
	}
	assert.Equal(t, []string{"A", "A.D", "A.D.E", "A.D.B", "A.D.B.C"}, got)

	// Moving a node into its own subtree is rejected
	w = doRequest(router, "PUT", fmt.Sprintf("/api/tree/%d/move", ids["A"]),
		models.MoveNodeRequest{ParentID: ids["C"]})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown node
	w = doRequest(router, "PUT", "/api/tree/999/move",
		models.MoveNodeRequest{ParentID: ids["A"]})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed id
	w = doRequest(router, "PUT", "/api/tree/abc/move",
		models.MoveNodeRequest{ParentID: ids["A"]})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteNode(t *testing.T) {
	router, repo, ids := setupTest(t)

	w := doRequest(router, "DELETE", fmt.Sprintf("/api/tree/%d", ids["D"]), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := repo.GetNode(context.Background(), ids["E"])
	assert.ErrorIs(t, err, repository.ErrNodeNotFound)

	w = doRequest(router, "DELETE", "/api/tree/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRebuild(t *testing.T) {
	router, repo, ids := setupTest(t)

	w := doRequest(router, "POST", "/api/tree/rebuild", models.RebuildRequest{Sorted: true})
	assert.Equal(t, http.StatusOK, w.Code)

	// B sorts before D, so the boundaries are unchanged for this tree
	node, err := repo.GetNode(context.Background(), ids["B"])
	assert.NoError(t, err)
	assert.Equal(t, int64(2), node.Lft)

	// Empty body defaults to an unsorted rebuild
	w = doRequest(router, "POST", "/api/tree/rebuild", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRelationEndpoints(t *testing.T) {
	router, _, ids := setupTest(t)

	w := doRequest(router, "GET", fmt.Sprintf("/api/tree/%d/ancestors", ids["E"]), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	nodes := decodeNodes(t, w)
	assert.Len(t, nodes, 2)
	assert.Equal(t, "A", nodes[0].Label)
	assert.Equal(t, "D", nodes[1].Label)

	w = doRequest(router, "GET", fmt.Sprintf("/api/tree/%d/children", ids["A"]), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	nodes = decodeNodes(t, w)
	assert.Len(t, nodes, 2)
	assert.Equal(t, "B", nodes[0].Label)

	w = doRequest(router, "GET", fmt.Sprintf("/api/tree/%d/descendants", ids["B"]), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	nodes = decodeNodes(t, w)
	assert.Len(t, nodes, 1)
	assert.Equal(t, "C", nodes[0].Label)
	assert.Equal(t, int64(1), nodes[0].Depth)

	w = doRequest(router, "GET", fmt.Sprintf("/api/tree/%d/descendants?absolute=true", ids["B"]), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	nodes = decodeNodes(t, w)
	assert.Equal(t, int64(3), nodes[0].Depth)
}
