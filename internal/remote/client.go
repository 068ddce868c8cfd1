// Package remote serves and consumes field policies over gRPC, so a field
// can be backed by an external reasoning service.
package remote

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

const (
	serviceName   = "ninefield.v1.FieldPolicy"
	proposeMethod = "/" + serviceName + "/ProposeAction"
)

// #region client-struct
// Client wraps one gRPC connection shared by any number of field policies.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to a policy server at addr. Extra options are
// appended after insecure transport credentials.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client over an injected connection.
// Used for testing without a real gRPC connection.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down the owned connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region policy
// Policy returns a field.Policy that proposes for id through c.
func (c *Client) Policy(id field.ID) *Policy {
	return &Policy{client: c, id: id}
}

// Policy is the remote field.Policy for one field.
type Policy struct {
	client *Client
	id     field.ID
}

// ProposeAction implements field.Policy. Deadline and availability
// failures are reported as field.ErrUpstreamTimeout.
func (p *Policy) ProposeAction(ctx context.Context, st state.State) (field.Proposal, error) {
	req, err := encodeRequest(p.id, st)
	if err != nil {
		return field.Proposal{}, err
	}
	resp := new(structpb.Struct)
	if err := p.client.cc.Invoke(ctx, proposeMethod, req, resp); err != nil {
		if isTimeout(err) {
			return field.Proposal{}, fmt.Errorf("%s: %w: %w", p.id, field.ErrUpstreamTimeout, err)
		}
		return field.Proposal{}, fmt.Errorf("propose rpc %s: %w", p.id, err)
	}
	return decodeProposal(p.id, resp)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded, codes.Unavailable:
		return true
	}
	return false
}

// #endregion policy
