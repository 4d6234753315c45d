package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// ServiceName is the fully qualified name of the records service.
const ServiceName = "recordkeeper.RecordService"

type IngestionService interface {
	CreateOrUpdateRecords(ctx context.Context, skipDupes bool, records []*models.Record, user string,
		collab *models.CollaborationContext) (*models.TransferInfo, error)
}

type BulkUpdateService interface {
	BulkUpdateRecords(ctx context.Context, param models.BulkUpdateParam, user string,
		collab *models.CollaborationContext) (*models.BulkUpdateResult, error)
}

type RecordService interface {
	GetRecord(ctx context.Context, id string, version int64, collab *models.CollaborationContext) (*models.Record, error)
	SoftDelete(ctx context.Context, id, user string, collab *models.CollaborationContext) error
	Purge(ctx context.Context, id, user string, collab *models.CollaborationContext) error
	PurgeVersions(ctx context.Context, id string, n int, user string, collab *models.CollaborationContext) error
	QueryByLegalTag(ctx context.Context, tag string, limit int, cursor string,
		collab *models.CollaborationContext) ([]*models.RecordMetadata, string, error)
}

// RecordsServer is the server API of the records service.
type RecordsServer interface {
	CreateOrUpdateRecords(context.Context, *CreateOrUpdateRecordsRequest) (*CreateOrUpdateRecordsResponse, error)
	BulkUpdateRecords(context.Context, *BulkUpdateRecordsRequest) (*models.BulkUpdateResult, error)
	GetRecord(context.Context, *GetRecordRequest) (*models.Record, error)
	DeleteRecord(context.Context, *RecordRequest) (*Empty, error)
	PurgeRecord(context.Context, *RecordRequest) (*Empty, error)
	PurgeRecordVersions(context.Context, *PurgeVersionsRequest) (*Empty, error)
	QueryByLegalTag(context.Context, *QueryByLegalTagRequest) (*QueryByLegalTagResponse, error)
}

// FullMethod returns the gRPC method path of name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateOrUpdateRecords", (*GRPCServer).CreateOrUpdateRecords),
		unary("BulkUpdateRecords", (*GRPCServer).BulkUpdateRecords),
		unary("GetRecord", (*GRPCServer).GetRecord),
		unary("DeleteRecord", (*GRPCServer).DeleteRecord),
		unary("PurgeRecord", (*GRPCServer).PurgeRecord),
		unary("PurgeRecordVersions", (*GRPCServer).PurgeRecordVersions),
		unary("QueryByLegalTag", (*GRPCServer).QueryByLegalTag),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recordkeeper/records.json",
}

// unary adapts a typed handler to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(*GRPCServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}
