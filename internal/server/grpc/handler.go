package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

func (s *GRPCServer) CreateOrUpdateRecords(ctx context.Context, req *CreateOrUpdateRecordsRequest) (*CreateOrUpdateRecordsResponse, error) {
	info, err := s.ingestion.CreateOrUpdateRecords(ctx, req.SkipDupes, req.Records, userFrom(ctx), req.Collaboration)
	if err != nil {
		return nil, s.toStatus(ctx, "create or update records", err)
	}

	resp := &CreateOrUpdateRecordsResponse{TransferInfo: info}
	for _, re := range info.Rejected {
		resp.Rejected = append(resp.Rejected, RejectedRecord{
			ID:     re.ID,
			Code:   codeOf(re.Err).String(),
			Reason: re.Err.Error(),
		})
	}
	s.logger.Info(ctx, "records ingested",
		"count", info.RecordCount, "skipped", len(info.SkippedRecords), "rejected", len(resp.Rejected))
	return resp, nil
}

func (s *GRPCServer) BulkUpdateRecords(ctx context.Context, req *BulkUpdateRecordsRequest) (*models.BulkUpdateResult, error) {
	res, err := s.bulk.BulkUpdateRecords(ctx, req.Query, userFrom(ctx), req.Collaboration)
	if err != nil {
		return nil, s.toStatus(ctx, "bulk update records", err)
	}
	return res, nil
}

func (s *GRPCServer) GetRecord(ctx context.Context, req *GetRecordRequest) (*models.Record, error) {
	r, err := s.records.GetRecord(ctx, req.ID, req.Version, req.Collaboration)
	if err != nil {
		return nil, s.toStatus(ctx, "get record", err)
	}
	return r, nil
}

func (s *GRPCServer) DeleteRecord(ctx context.Context, req *RecordRequest) (*Empty, error) {
	if err := s.records.SoftDelete(ctx, req.ID, userFrom(ctx), req.Collaboration); err != nil {
		return nil, s.toStatus(ctx, "delete record", err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) PurgeRecord(ctx context.Context, req *RecordRequest) (*Empty, error) {
	if err := s.records.Purge(ctx, req.ID, userFrom(ctx), req.Collaboration); err != nil {
		return nil, s.toStatus(ctx, "purge record", err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) PurgeRecordVersions(ctx context.Context, req *PurgeVersionsRequest) (*Empty, error) {
	if err := s.records.PurgeVersions(ctx, req.ID, req.Count, userFrom(ctx), req.Collaboration); err != nil {
		return nil, s.toStatus(ctx, "purge record versions", err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) QueryByLegalTag(ctx context.Context, req *QueryByLegalTagRequest) (*QueryByLegalTagResponse, error) {
	rows, next, err := s.records.QueryByLegalTag(ctx, req.LegalTag, req.Limit, req.Cursor, req.Collaboration)
	if err != nil {
		return nil, s.toStatus(ctx, "query by legal tag", err)
	}
	return &QueryByLegalTagResponse{Records: rows, Cursor: next}, nil
}

func userFrom(ctx context.Context) string {
	if p, ok := entitlements.PrincipalFromContext(ctx); ok {
		return p.User
	}
	return ""
}

// toStatus maps err to a gRPC status and logs server-side failures.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	code := codeOf(err)
	if code == codes.Internal || code == codes.Unavailable {
		s.logger.Error(ctx, op+" failed", "error", err)
		return status.Error(code, op+" failed")
	}
	return status.Error(code, err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, common.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrAuthorizationDenied):
		return codes.PermissionDenied
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrParentNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrVersionConflict):
		return codes.Aborted
	case errors.Is(err, common.ErrStorageFailure):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
