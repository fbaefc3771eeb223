// Package server exposes the draft service over gRPC
package server

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/drafter/internal/logger"
	"github.com/nainya/drafter/pkg/draft"
	"github.com/nainya/drafter/pkg/version"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "drafter.v1.DraftService"

// Request fields shared by every method
const (
	FieldUserID   = "user_id"
	FieldThreadID = "thread_id"
)

// DraftServiceServer is the server API for drafter.v1.DraftService. Requests
// and responses are google.protobuf.Struct messages.
type DraftServiceServer interface {
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Save(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Revert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// methods maps each RPC to the command it runs
var methods = []struct {
	name string
	kind draft.Kind
	call func(DraftServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)
}{
	{"Update", draft.KindUpdate, DraftServiceServer.Update},
	{"Save", draft.KindSave, DraftServiceServer.Save},
	{"GetDraft", draft.KindGetDraft, DraftServiceServer.GetDraft},
	{"Revert", draft.KindRevert, DraftServiceServer.Revert},
	{"History", draft.KindHistory, DraftServiceServer.History},
}

// ServiceDesc describes drafter.v1.DraftService for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DraftServiceServer)(nil),
	Methods:     methodDescs(),
	Streams:     []grpc.StreamDesc{},
	Metadata:    "drafter/v1/draft.proto",
}

func methodDescs() []grpc.MethodDesc {
	descs := make([]grpc.MethodDesc, len(methods))
	for i, m := range methods {
		fullMethod := FullMethod(m.name)
		call := m.call
		descs[i] = grpc.MethodDesc{
			MethodName: m.name,
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return call(srv.(DraftServiceServer), ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
				handler := func(ctx context.Context, req any) (any, error) {
					return call(srv.(DraftServiceServer), ctx, req.(*structpb.Struct))
				}
				return interceptor(ctx, in, info, handler)
			},
		}
	}
	return descs
}

// FullMethod returns the gRPC method path for name
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Server implements DraftServiceServer on top of a draft.Service
type Server struct {
	svc *draft.Service
	log *logger.Logger
}

// NewServer creates a gRPC server instance
func NewServer(svc *draft.Service, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{svc: svc, log: log}
}

// Register adds the service to a grpc.Server
func (s *Server) Register(g grpc.ServiceRegistrar) {
	g.RegisterService(&ServiceDesc, s)
}

func (s *Server) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(ctx, draft.KindUpdate, req)
}

func (s *Server) Save(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(ctx, draft.KindSave, req)
}

func (s *Server) GetDraft(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(ctx, draft.KindGetDraft, req)
}

func (s *Server) Revert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(ctx, draft.KindRevert, req)
}

func (s *Server) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(ctx, draft.KindHistory, req)
}

func (s *Server) handle(ctx context.Context, kind draft.Kind, req *structpb.Struct) (*structpb.Struct, error) {
	args := req.AsMap()

	scope, err := scopeFrom(args)
	if err != nil {
		return nil, toStatus(err)
	}
	cmd, err := draft.ParseCommand(string(kind), args)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := s.svc.Execute(ctx, scope, cmd)
	if err != nil && !errors.Is(err, version.ErrNotFound) {
		return nil, toStatus(err)
	}
	if err != nil {
		s.log.RPCLogger(string(kind)).Info("not found returned as result").
			Str("request_id", RequestID(ctx)).
			Str("user_id", scope.UserID).
			Str("thread_id", scope.ThreadID).
			Str("outcome", "not_found").
			Err(err).
			Send()
	}

	out, convErr := ResultToStruct(res)
	if convErr != nil {
		return nil, status.Errorf(codes.Internal, "encoding result: %v", convErr)
	}
	return out, nil
}

func scopeFrom(args map[string]any) (version.Scope, error) {
	var scope version.Scope
	for field, dst := range map[string]*string{FieldUserID: &scope.UserID, FieldThreadID: &scope.ThreadID} {
		v, ok := args[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return scope, fmt.Errorf("%w: %q must be a string, got %T", version.ErrInvalidArgument, field, v)
		}
		*dst = s
	}
	return scope, scope.Validate()
}

// toStatus maps domain errors onto gRPC codes. Unknown versions and missing
// drafts never reach here; they are returned as results.
func toStatus(err error) error {
	switch {
	case errors.Is(err, version.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, version.ErrConsistencyFault):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, version.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, version.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// ResultToStruct converts a command result to its wire form
func ResultToStruct(res *draft.Result) (*structpb.Struct, error) {
	versions := make([]any, len(res.Versions))
	for i, v := range res.Versions {
		versions[i] = v
	}
	return structpb.NewStruct(map[string]any{
		"output":    res.Output,
		"status":    string(res.Status),
		"user_id":   res.UserID,
		"thread_id": res.ThreadID,
		"version":   res.Version,
		"content":   res.Content,
		"versions":  versions,
		"filename":  res.Filename,
		"no_draft":  res.NoDraft,
	})
}

// ResultFromStruct is the inverse of ResultToStruct
func ResultFromStruct(s *structpb.Struct) *draft.Result {
	f := s.GetFields()
	res := &draft.Result{
		Output:   f["output"].GetStringValue(),
		Status:   draft.Status(f["status"].GetStringValue()),
		UserID:   f["user_id"].GetStringValue(),
		ThreadID: f["thread_id"].GetStringValue(),
		Version:  f["version"].GetStringValue(),
		Content:  f["content"].GetStringValue(),
		Filename: f["filename"].GetStringValue(),
		NoDraft:  f["no_draft"].GetBoolValue(),
	}
	for _, v := range f["versions"].GetListValue().GetValues() {
		res.Versions = append(res.Versions, v.GetStringValue())
	}
	return res
}
