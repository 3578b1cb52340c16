// Package user 资料聚合服务
//
// 把身份库（权威）和资料库（尽力而为）合并为对外的组合视图。
// 两库之间没有共享事务，读路径的降级规则见各方法注释。
package user

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"user-admin/internal/shared/apperr"
	"user-admin/internal/shared/model"
	"user-admin/internal/shared/storage"
	"user-admin/pkg/logging"
)

// Service 资料聚合服务
type Service struct {
	identities storage.IdentityStore
	profiles   storage.ProfileStore
	log        *logging.Logger

	// enrichFailures 列表聚合中单行资料读取失败的计数器，可为 nil
	enrichFailures prometheus.Counter
}

// NewService 创建资料聚合服务
func NewService(identities storage.IdentityStore, profiles storage.ProfileStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Default("user-service")
	}
	return &Service{identities: identities, profiles: profiles, log: log}
}

// WithEnrichmentCounter 注册资料补充失败计数器
func (s *Service) WithEnrichmentCounter(c prometheus.Counter) *Service {
	s.enrichFailures = c
	return s
}

// classifyStoreErr 存储适配层失败的统一分类
// 超时单独归为 network.timeout（可重试），其余归为 system.internal
func classifyStoreErr(err error, message, userID string) *apperr.Error {
	kind := apperr.KindInternal
	if errors.Is(err, context.DeadlineExceeded) {
		kind = apperr.KindTimeout
	}
	return apperr.Classify(kind, message).WithCause(err).WithContext("user_id", userID)
}

// GetComposedView 返回单个用户的组合视图
//
// 此操作要求两条记录都存在：身份不存在返回 resource.notFound，
// 非 active 返回 business.accountInactive，资料不存在返回 resource.profileNotFound。
func (s *Service) GetComposedView(ctx context.Context, id string) (*model.ComposedUserView, error) {
	identity, err := s.identities.GetUserByID(ctx, id)
	if err != nil {
		return nil, classifyStoreErr(err, "load identity record", id)
	}
	if identity == nil {
		return nil, apperr.Classify(apperr.KindNotFound, "user not found").WithContext("user_id", id)
	}
	if !identity.IsActive() {
		return nil, apperr.Classify(apperr.KindAccountInactive, "account is not active").
			WithContext("user_id", id).
			WithContext("status", string(identity.Status))
	}

	profile, err := s.profiles.GetProfileByUserID(ctx, id)
	if err != nil {
		return nil, classifyStoreErr(err, "load profile record", id)
	}
	if profile == nil {
		return nil, apperr.Classify(apperr.KindProfileNotFound, "profile not found").WithContext("user_id", id)
	}

	return model.ComposeUserView(identity, profile), nil
}

// ApplyPatch 应用资料部分更新并返回更新后的组合视图
//
// 前置条件与 GetComposedView 相同（身份存在且 active、资料存在）。
// 每次成功更新无条件把 metadata.version 加 1，即使字段值没有变化。
// 返回值通过重新执行 GetComposedView 获得，保证视图与存储不会分叉。
func (s *Service) ApplyPatch(ctx context.Context, id string, patch *model.ProfilePatch) (*model.ComposedUserView, error) {
	identity, err := s.identities.GetUserByID(ctx, id)
	if err != nil {
		return nil, classifyStoreErr(err, "load identity record", id)
	}
	if identity == nil {
		return nil, apperr.Classify(apperr.KindNotFound, "user not found").WithContext("user_id", id)
	}
	if !identity.IsActive() {
		return nil, apperr.Classify(apperr.KindAccountInactive, "account is not active").
			WithContext("user_id", id).
			WithContext("status", string(identity.Status))
	}

	existing, err := s.profiles.GetProfileByUserID(ctx, id)
	if err != nil {
		return nil, classifyStoreErr(err, "load profile record", id)
	}
	if existing == nil {
		return nil, apperr.Classify(apperr.KindProfileNotFound, "profile not found").WithContext("user_id", id)
	}

	updated, err := s.profiles.UpdateProfile(ctx, id, BuildProfileUpdate(patch))
	if err != nil {
		return nil, classifyStoreErr(err, "update profile record", id)
	}
	if updated == nil {
		// 前置检查和更新之间文档消失，按存储层失败上报
		return nil, apperr.Classify(apperr.KindQueryFailed, "profile update returned no record").
			WithContext("user_id", id)
	}

	return s.GetComposedView(ctx, id)
}

// ListComposedViews 分页列出组合视图
//
// page/limit 在服务端钳制：page ≥ 1，1 ≤ limit ≤ 100，响应回显实际生效值。
// 每行的资料读取独立进行，单行失败不影响整页：
// 无资料降级为 DisplayNameMissing，读取失败降级为 DisplayNameError。
func (s *Service) ListComposedViews(ctx context.Context, page, limit int) (*model.PagedUsers, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	users, total, err := s.identities.ListUsers(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, classifyStoreErr(err, "list identity records", "")
	}

	items := make([]*model.ComposedUserView, 0, len(users))
	for _, u := range users {
		profile, err := s.profiles.GetProfileByUserID(ctx, u.ID)
		if err != nil {
			// 单行资料失败只降级，不失败整页
			s.log.Warn("profile enrichment failed",
				"user_id", u.ID, "error", err.Error())
			if s.enrichFailures != nil {
				s.enrichFailures.Inc()
			}
			view := model.ComposeUserView(u, nil)
			view.Name = model.DisplayNameError
			items = append(items, view)
			continue
		}
		items = append(items, model.ComposeUserView(u, profile))
	}

	totalPages := (total + limit - 1) / limit
	return &model.PagedUsers{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}
