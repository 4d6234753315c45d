package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// validatePatch checks the shape of ops and the values they introduce.
func (s *BulkUpdateService) validatePatch(ctx context.Context, ops []models.PatchOperation) error {
	if len(ops) == 0 {
		return fmt.Errorf("%w: no operations", common.ErrInvalidPatch)
	}
	for i, op := range ops {
		switch op.Op {
		case models.PatchAdd, models.PatchReplace, models.PatchRemove:
		default:
			return fmt.Errorf("%w: #%d: unknown op %q", common.ErrInvalidPatch, i, op.Op)
		}
		if len(op.Value) == 0 {
			return fmt.Errorf("%w: #%d: empty value", common.ErrInvalidPatch, i)
		}

		adds := op.Op != models.PatchRemove
		switch op.Path {
		case models.PathAclViewers, models.PathAclOwners:
			if adds && !s.auth.HasValidAcl(ctx, models.Acl{Viewers: op.Value, Owners: op.Value}) {
				return fmt.Errorf("%w: #%d: %w", common.ErrInvalidPatch, i, common.ErrInvalidAcl)
			}
		case models.PathLegalTags:
			if adds {
				if err := s.legal.ValidateLegalTags(ctx, op.Value); err != nil {
					return err
				}
			}
		case models.PathTags:
			if adds {
				for _, kv := range op.Value {
					if k, _, ok := strings.Cut(kv, ":"); !ok || k == "" {
						return fmt.Errorf("%w: #%d: tag %q is not key:value", common.ErrInvalidPatch, i, kv)
					}
				}
			}
		default:
			return fmt.Errorf("%w: #%d: unsupported path %q", common.ErrInvalidPatch, i, op.Path)
		}
	}
	return nil
}

// applyPatch applies ops to m in order.
func applyPatch(m *models.RecordMetadata, ops []models.PatchOperation) {
	for _, op := range ops {
		switch op.Path {
		case models.PathAclViewers:
			m.Acl.Viewers = patchList(m.Acl.Viewers, op)
		case models.PathAclOwners:
			m.Acl.Owners = patchList(m.Acl.Owners, op)
		case models.PathLegalTags:
			m.Legal.LegalTags = patchList(m.Legal.LegalTags, op)
		case models.PathTags:
			m.Tags = patchTags(m.Tags, op)
		}
	}
}

func patchList(cur []string, op models.PatchOperation) []string {
	switch op.Op {
	case models.PatchReplace:
		return dedupe(op.Value)
	case models.PatchAdd:
		return dedupe(append(append([]string(nil), cur...), op.Value...))
	default:
		drop := make(map[string]struct{}, len(op.Value))
		for _, v := range op.Value {
			drop[v] = struct{}{}
		}
		out := make([]string, 0, len(cur))
		for _, v := range cur {
			if _, ok := drop[v]; !ok {
				out = append(out, v)
			}
		}
		return out
	}
}

func patchTags(cur map[string]string, op models.PatchOperation) map[string]string {
	if op.Op == models.PatchReplace {
		cur = nil
	}
	out := cloneTags(cur)
	if out == nil {
		out = make(map[string]string, len(op.Value))
	}
	for _, v := range op.Value {
		if op.Op == models.PatchRemove {
			delete(out, v)
			continue
		}
		k, val, _ := strings.Cut(v, ":")
		out[k] = val
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
