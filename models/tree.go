package models

// Node represents a single node of the tree as returned by the API. Depth and
// Path are populated by subtree reads; the boundary indices are included so
// clients can reason about subtree ranges without extra round trips.
type Node struct {
	ID       int64  `json:"id"`
	Label    string `json:"label" validate:"required"`
	ParentID *int64 `json:"parentId,omitempty"`
	Lft      int64  `json:"lft"`
	Rgt      int64  `json:"rgt"`
	Depth    int64  `json:"depth"`
	Path     string `json:"path,omitempty"`
}
