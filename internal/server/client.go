package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/drafter/pkg/draft"
	"github.com/nainya/drafter/pkg/version"
)

// Client calls drafter.v1.DraftService
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method for scope with extra request fields
func (c *Client) Call(ctx context.Context, method string, scope version.Scope, fields map[string]any, opts ...grpc.CallOption) (*draft.Result, error) {
	m := map[string]any{
		FieldUserID:   scope.UserID,
		FieldThreadID: scope.ThreadID,
	}
	for k, v := range fields {
		m[k] = v
	}
	req, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return ResultFromStruct(out), nil
}

func (c *Client) Update(ctx context.Context, scope version.Scope, content string) (*draft.Result, error) {
	return c.Call(ctx, "Update", scope, map[string]any{"content": content})
}

func (c *Client) Save(ctx context.Context, scope version.Scope, filename string) (*draft.Result, error) {
	return c.Call(ctx, "Save", scope, map[string]any{"filename": filename})
}

func (c *Client) GetDraft(ctx context.Context, scope version.Scope) (*draft.Result, error) {
	return c.Call(ctx, "GetDraft", scope, nil)
}

func (c *Client) Revert(ctx context.Context, scope version.Scope, versionID string) (*draft.Result, error) {
	return c.Call(ctx, "Revert", scope, map[string]any{"version_id": versionID})
}

func (c *Client) History(ctx context.Context, scope version.Scope) (*draft.Result, error) {
	return c.Call(ctx, "History", scope, nil)
}
