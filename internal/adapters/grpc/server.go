package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/viralforge/escrow-milestone-ledger/internal/application"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/ports"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	ServiceName         = "escrow.v1.EscrowInternalService"
	authMetadataKey     = "authorization"
	servicePrincipalTag = "service:"
)

type actorKey struct{}

type GetBalanceRequest struct {
	AccountID string `json:"account_id"`
}

type GetBalanceResponse struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`
	Total     string `json:"total"`
	Held      string `json:"held"`
	Released  string `json:"released"`
	Refunded  string `json:"refunded"`
}

// BalanceReader is the slice of the application service exposed to other
// platform services.
type BalanceReader interface {
	GetBalance(ctx context.Context, actor application.Actor, accountID string) (domain.Balance, error)
}

type EscrowInternalServer struct {
	service BalanceReader
}

func NewEscrowInternalServer(service BalanceReader) *EscrowInternalServer {
	return &EscrowInternalServer{service: service}
}

// Register wires the internal escrow API and the standard health service.
func Register(server *grpc.Server, svc *EscrowInternalServer) *health.Server {
	server.RegisterService(&serviceDesc, svc)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return hs
}

func (s *EscrowInternalServer) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	actor, ok := ctx.Value(actorKey{}).(application.Actor)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	if strings.TrimSpace(req.AccountID) == "" {
		return nil, status.Error(codes.InvalidArgument, "account_id is required")
	}
	bal, err := s.service.GetBalance(ctx, actor, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetBalanceResponse{
		AccountID: bal.AccountID,
		Currency:  string(bal.Currency),
		Total:     bal.Total.StringFixed(domain.MinorUnits),
		Held:      bal.Held.StringFixed(domain.MinorUnits),
		Released:  bal.Released.StringFixed(domain.MinorUnits),
		Refunded:  bal.Refunded.StringFixed(domain.MinorUnits),
	}, nil
}

// AuthInterceptor admits callers presenting a service token. The token's
// subject becomes a read-only service actor.
func AuthInterceptor(verifier ports.IdentityVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/"+healthpb.Health_ServiceDesc.ServiceName+"/") {
			return handler(ctx, req)
		}
		token := metadataValue(ctx, authMetadataKey)
		if len(token) < 7 || !strings.EqualFold(token[:7], "bearer ") {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		principal, err := verifier.Verify(ctx, strings.TrimSpace(token[7:]))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or missing credentials")
		}
		if principal.Role != domain.RoleService {
			return nil, status.Error(codes.PermissionDenied, "service credentials required")
		}
		actor := application.Actor{
			SubjectID: servicePrincipalTag + principal.UserID,
			Role:      domain.RoleService,
		}
		return handler(context.WithValue(ctx, actorKey{}, actor), req)
	}
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "account not found")
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func getBalanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*EscrowInternalServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetBalance"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*EscrowInternalServer).GetBalance(ctx, req.(*GetBalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBalance", Handler: getBalanceHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// GetBalance calls the internal API over conn with a service bearer token.
func GetBalance(ctx context.Context, conn grpc.ClientConnInterface, token, accountID string) (*GetBalanceResponse, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, authMetadataKey, "Bearer "+token)
	out := new(GetBalanceResponse)
	err := conn.Invoke(ctx, "/"+ServiceName+"/GetBalance", &GetBalanceRequest{AccountID: accountID}, out, grpc.CallContentSubtype("json"))
	if err != nil {
		return nil, err
	}
	return out, nil
}
