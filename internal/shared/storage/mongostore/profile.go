package mongostore

import (
	"context"
	"errors"
	"time"

	"user-admin/internal/shared/model"
	"user-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateProfile 创建档案文档
// _id 即 user_id，重复写入转换为 storage.ErrDuplicate
func (s *Store) CreateProfile(ctx context.Context, profile *model.Profile) error {
	return insertOne(ctx, s.col(ColProfiles), profile)
}

// GetProfileByUserID 通过 user_id 查找档案，不存在时返回 (nil, nil)
func (s *Store) GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	return findOne[model.Profile](ctx, s.col(ColProfiles), bson.D{{Key: "_id", Value: userID}})
}

// UpdateProfile 对档案文档执行路径级更新
//
// update.Set 中的路径通过 $set 写入（值为 nil 时写入字面 null），
// update.Unset 中的路径通过 $unset 整体移除。
// 每次更新原子地递增 metadata.version 并刷新 metadata.updated_at。
// 文档不存在时返回 (nil, nil)，由调用方决定如何上报。
func (s *Store) UpdateProfile(ctx context.Context, userID string, update storage.ProfileUpdate) (*model.Profile, error) {
	set := bson.D{{Key: "metadata.updated_at", Value: time.Now().UTC()}}
	for path, value := range update.Set {
		set = append(set, bson.E{Key: path, Value: value})
	}

	doc := bson.D{
		{Key: "$set", Value: set},
		{Key: "$inc", Value: bson.D{{Key: "metadata.version", Value: 1}}},
	}
	if len(update.Unset) > 0 {
		unset := bson.D{}
		for _, path := range update.Unset {
			unset = append(unset, bson.E{Key: path, Value: ""})
		}
		doc = append(doc, bson.E{Key: "$unset", Value: unset})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var result model.Profile
	err := s.col(ColProfiles).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: userID}}, doc, opts).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, wrapError(err)
	}
	return &result, nil
}
