package models

import (
	"github.com/go-playground/validator/v10"
)

// CreateNodeRequest represents the request body for creating a node
type CreateNodeRequest struct {
	Label    string `json:"label" validate:"required,min=1,max=100"`
	ParentID int64  `json:"parentId" validate:"omitempty,gt=0"`
}

// MoveNodeRequest represents the request body for moving a node's subtree
// under a new parent. A zero ParentID moves the node to the top level.
type MoveNodeRequest struct {
	ParentID int64 `json:"parentId" validate:"gte=0"`
}

// RebuildRequest represents the request body for rebuilding the boundary
// indices from parent references.
type RebuildRequest struct {
	Sorted bool `json:"sorted"`
}

// Validate validates the create node request
func (r *CreateNodeRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the move node request
func (r *MoveNodeRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
