package repository

import (
	"context"
	"errors"
	"time"

	"episode_transcode_service/internal/transcode/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const episodeCollection = "episodes"

type episodeMongoRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewEpisodeMongoRepo create mongo episode repo
func NewEpisodeMongoRepo(db *mongo.Database) EpisodeRepo {
	return &episodeMongoRepo{
		coll: db.Collection(episodeCollection),
		now:  time.Now,
	}
}

// EnsureEpisodeIndexes 啟動時建立索引
func EnsureEpisodeIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(episodeCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	return err
}

// NextID 與原本的 ObjectId 格式一致
func (r *episodeMongoRepo) NextID() string {
	return primitive.NewObjectID().Hex()
}

func (r *episodeMongoRepo) Create(ctx context.Context, ep *domain.Episode) error {
	now := r.now()
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	ep.UpdatedAt = now
	if ep.Variants == nil {
		ep.Variants = []string{}
	}
	_, err := r.coll.InsertOne(ctx, ep)
	return err
}

func (r *episodeMongoRepo) FindByID(ctx context.Context, id string) (*domain.Episode, error) {
	var ep domain.Episode
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&ep)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &domain.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

func (r *episodeMongoRepo) UpdateByID(ctx context.Context, id string, update domain.StatusUpdate) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, statusUpdateDoc(update, r.now()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &domain.NotFoundError{ID: id}
	}
	return nil
}

func (r *episodeMongoRepo) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.JobQueued},
		statusUpdateDoc(domain.ProcessingUpdate(), r.now()),
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *episodeMongoRepo) Requeue(ctx context.Context, id string, force bool) error {
	filter := bson.M{"_id": id}
	if !force {
		filter["status"] = bson.M{"$ne": domain.JobProcessing}
	}
	res, err := r.coll.UpdateOne(ctx, filter, statusUpdateDoc(domain.StatusUpdate{Status: domain.JobQueued}, r.now()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	// 沒有命中：可能不存在，或仍在 processing
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrJobProcessing
}

func (r *episodeMongoRepo) FindByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Episode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{"status": status}, opts)
}

func (r *episodeMongoRepo) List(ctx context.Context, limit int) ([]domain.Episode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{}, opts)
}

func (r *episodeMongoRepo) UpdateLinkage(ctx context.Context, id string, linkage domain.Linkage) (*domain.Episode, error) {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"animeSlug":     linkage.AnimeSlug,
		"episodeNumber": linkage.EpisodeNumber,
		"updatedAt":     r.now(),
	}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, &domain.NotFoundError{ID: id}
	}
	return r.FindByID(ctx, id)
}

func (r *episodeMongoRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Episode, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	episodes := []domain.Episode{}
	if err := cur.All(ctx, &episodes); err != nil {
		return nil, err
	}
	return episodes, nil
}

// statusUpdateDoc 產生 $set / $unset，確保 ready 與 failed 的欄位互斥
func statusUpdateDoc(u domain.StatusUpdate, now time.Time) bson.M {
	set := bson.M{"status": u.Status, "updatedAt": now}
	unset := bson.M{}

	switch u.Status {
	case domain.JobReady:
		set["hlsPath"] = u.ManifestPath
		set["thumbnail"] = u.ThumbnailPath
		set["variants"] = nonNil(u.Renditions)
		unset["error"] = ""
	case domain.JobFailed:
		set["error"] = u.ErrorMessage
		set["variants"] = []string{}
		unset["hlsPath"] = ""
		unset["thumbnail"] = ""
	default:
		set["variants"] = []string{}
		unset["hlsPath"] = ""
		unset["thumbnail"] = ""
		unset["error"] = ""
	}

	return bson.M{"$set": set, "$unset": unset}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
