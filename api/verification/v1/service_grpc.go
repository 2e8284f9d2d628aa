package verificationv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "verification.v1.VerificationService"

	VerificationService_UploadEvidence_FullMethodName        = "/verification.v1.VerificationService/UploadEvidence"
	VerificationService_DeleteEvidence_FullMethodName        = "/verification.v1.VerificationService/DeleteEvidence"
	VerificationService_CreateVerification_FullMethodName    = "/verification.v1.VerificationService/CreateVerification"
	VerificationService_UpdateProfile_FullMethodName         = "/verification.v1.VerificationService/UpdateProfile"
	VerificationService_EnqueueNotification_FullMethodName   = "/verification.v1.VerificationService/EnqueueNotification"
	VerificationService_GetVerificationStatus_FullMethodName = "/verification.v1.VerificationService/GetVerificationStatus"
)

// VerificationServiceServer is the backend the verification workflow talks to.
type VerificationServiceServer interface {
	UploadEvidence(grpc.ClientStreamingServer[UploadEvidenceRequest, UploadEvidenceResponse]) error
	DeleteEvidence(context.Context, *DeleteEvidenceRequest) (*DeleteEvidenceResponse, error)
	CreateVerification(context.Context, *CreateVerificationRequest) (*CreateVerificationResponse, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*UpdateProfileResponse, error)
	EnqueueNotification(context.Context, *EnqueueNotificationRequest) (*EnqueueNotificationResponse, error)
	GetVerificationStatus(context.Context, *GetVerificationStatusRequest) (*GetVerificationStatusResponse, error)
}

// UnimplementedVerificationServiceServer can be embedded for forward compatibility.
type UnimplementedVerificationServiceServer struct{}

func (UnimplementedVerificationServiceServer) UploadEvidence(grpc.ClientStreamingServer[UploadEvidenceRequest, UploadEvidenceResponse]) error {
	return status.Error(codes.Unimplemented, "method UploadEvidence not implemented")
}
func (UnimplementedVerificationServiceServer) DeleteEvidence(context.Context, *DeleteEvidenceRequest) (*DeleteEvidenceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteEvidence not implemented")
}
func (UnimplementedVerificationServiceServer) CreateVerification(context.Context, *CreateVerificationRequest) (*CreateVerificationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateVerification not implemented")
}
func (UnimplementedVerificationServiceServer) UpdateProfile(context.Context, *UpdateProfileRequest) (*UpdateProfileResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateProfile not implemented")
}
func (UnimplementedVerificationServiceServer) EnqueueNotification(context.Context, *EnqueueNotificationRequest) (*EnqueueNotificationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method EnqueueNotification not implemented")
}
func (UnimplementedVerificationServiceServer) GetVerificationStatus(context.Context, *GetVerificationStatusRequest) (*GetVerificationStatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetVerificationStatus not implemented")
}

func RegisterVerificationServiceServer(s grpc.ServiceRegistrar, srv VerificationServiceServer) {
	s.RegisterService(&VerificationService_ServiceDesc, srv)
}

// unaryHandler adapts a typed server method to a grpc.MethodDesc handler.
func unaryHandler[Req, Res any](fullMethod string, call func(VerificationServiceServer, context.Context, *Req) (*Res, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VerificationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VerificationServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func uploadEvidenceHandler(srv any, stream grpc.ServerStream) error {
	return srv.(VerificationServiceServer).UploadEvidence(&grpc.GenericServerStream[UploadEvidenceRequest, UploadEvidenceResponse]{ServerStream: stream})
}

var VerificationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VerificationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DeleteEvidence",
			Handler:    unaryHandler(VerificationService_DeleteEvidence_FullMethodName, VerificationServiceServer.DeleteEvidence),
		},
		{
			MethodName: "CreateVerification",
			Handler:    unaryHandler(VerificationService_CreateVerification_FullMethodName, VerificationServiceServer.CreateVerification),
		},
		{
			MethodName: "UpdateProfile",
			Handler:    unaryHandler(VerificationService_UpdateProfile_FullMethodName, VerificationServiceServer.UpdateProfile),
		},
		{
			MethodName: "EnqueueNotification",
			Handler:    unaryHandler(VerificationService_EnqueueNotification_FullMethodName, VerificationServiceServer.EnqueueNotification),
		},
		{
			MethodName: "GetVerificationStatus",
			Handler:    unaryHandler(VerificationService_GetVerificationStatus_FullMethodName, VerificationServiceServer.GetVerificationStatus),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "UploadEvidence",
			Handler:       uploadEvidenceHandler,
			ClientStreams: true,
		},
	},
	Metadata: "verification/v1/verification.proto",
}

// VerificationServiceClient is the client API for VerificationService.
type VerificationServiceClient interface {
	UploadEvidence(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[UploadEvidenceRequest, UploadEvidenceResponse], error)
	DeleteEvidence(ctx context.Context, in *DeleteEvidenceRequest, opts ...grpc.CallOption) (*DeleteEvidenceResponse, error)
	CreateVerification(ctx context.Context, in *CreateVerificationRequest, opts ...grpc.CallOption) (*CreateVerificationResponse, error)
	UpdateProfile(ctx context.Context, in *UpdateProfileRequest, opts ...grpc.CallOption) (*UpdateProfileResponse, error)
	EnqueueNotification(ctx context.Context, in *EnqueueNotificationRequest, opts ...grpc.CallOption) (*EnqueueNotificationResponse, error)
	GetVerificationStatus(ctx context.Context, in *GetVerificationStatusRequest, opts ...grpc.CallOption) (*GetVerificationStatusResponse, error)
}

type verificationServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewVerificationServiceClient(cc grpc.ClientConnInterface) VerificationServiceClient {
	return &verificationServiceClient{cc: cc}
}

// callOptions forces the JSON codec on every call.
func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func invoke[Req, Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	if err := cc.Invoke(ctx, method, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *verificationServiceClient) UploadEvidence(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[UploadEvidenceRequest, UploadEvidenceResponse], error) {
	stream, err := c.cc.NewStream(ctx, &VerificationService_ServiceDesc.Streams[0], VerificationService_UploadEvidence_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[UploadEvidenceRequest, UploadEvidenceResponse]{ClientStream: stream}, nil
}

func (c *verificationServiceClient) DeleteEvidence(ctx context.Context, in *DeleteEvidenceRequest, opts ...grpc.CallOption) (*DeleteEvidenceResponse, error) {
	return invoke[DeleteEvidenceRequest, DeleteEvidenceResponse](ctx, c.cc, VerificationService_DeleteEvidence_FullMethodName, in, opts)
}

func (c *verificationServiceClient) CreateVerification(ctx context.Context, in *CreateVerificationRequest, opts ...grpc.CallOption) (*CreateVerificationResponse, error) {
	return invoke[CreateVerificationRequest, CreateVerificationResponse](ctx, c.cc, VerificationService_CreateVerification_FullMethodName, in, opts)
}

func (c *verificationServiceClient) UpdateProfile(ctx context.Context, in *UpdateProfileRequest, opts ...grpc.CallOption) (*UpdateProfileResponse, error) {
	return invoke[UpdateProfileRequest, UpdateProfileResponse](ctx, c.cc, VerificationService_UpdateProfile_FullMethodName, in, opts)
}

func (c *verificationServiceClient) EnqueueNotification(ctx context.Context, in *EnqueueNotificationRequest, opts ...grpc.CallOption) (*EnqueueNotificationResponse, error) {
	return invoke[EnqueueNotificationRequest, EnqueueNotificationResponse](ctx, c.cc, VerificationService_EnqueueNotification_FullMethodName, in, opts)
}

func (c *verificationServiceClient) GetVerificationStatus(ctx context.Context, in *GetVerificationStatusRequest, opts ...grpc.CallOption) (*GetVerificationStatusResponse, error) {
	return invoke[GetVerificationStatusRequest, GetVerificationStatusResponse](ctx, c.cc, VerificationService_GetVerificationStatus_FullMethodName, in, opts)
}
