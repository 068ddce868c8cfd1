package remote

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
)

// #region service
// PolicyServer is the server side of the FieldPolicy service.
type PolicyServer interface {
	ProposeAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PolicyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProposeAction", Handler: proposeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ninefield/v1/field_policy.proto",
}

func proposeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PolicyServer).ProposeAction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: proposeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PolicyServer).ProposeAction(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion service

// #region register
// RegisterPolicyServer serves the given field policies on s.
func RegisterPolicyServer(s grpc.ServiceRegistrar, policies map[field.ID]field.Policy) {
	s.RegisterService(&serviceDesc, &policyServer{policies: policies})
}

type policyServer struct {
	policies map[field.ID]field.Policy
}

func (s *policyServer) ProposeAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, st, err := decodeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	p, ok := s.policies[id]
	if !ok {
		return nil, status.Error(codes.NotFound, fmt.Sprintf("field %s not served", id))
	}
	prop, err := p.ProposeAction(ctx, st)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encodeProposal(prop)
}

// #endregion register
