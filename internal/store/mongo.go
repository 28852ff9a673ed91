package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/model"
	"github.com/cam3ron2/commit-ingest/internal/telemetry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
)

// Collection names shared with the rest of the dashboard.
const (
	CommitsCollection        = "commits"
	CollectorItemsCollection = "collector_items"
	GitRequestsCollection    = "gitrequests"
)

// caseInsensitive makes string equality ignore case on indexed lookups.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// MongoConfig configures the MongoDB-backed record store.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// MongoStore keeps commits, tracked items and pull requests in MongoDB.
type MongoStore struct {
	client  *mongo.Client
	commits *mongo.Collection
	items   *mongo.Collection
	pulls   *mongo.Collection

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := newMongoStoreFromDatabase(client.Database(cfg.Database))
	store.client = client
	return store, nil
}

func newMongoStoreFromDatabase(db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:  db.Client(),
		commits: db.Collection(CommitsCollection),
		items:   db.Collection(CollectorItemsCollection),
		pulls:   db.Collection(GitRequestsCollection),
		Now:     time.Now,
	}
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping reports MongoDB availability.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// NewID returns a new record identifier.
func (s *MongoStore) NewID() string {
	return NewID()
}

// FindTrackedItem returns the tracked item for a repository and branch, ignoring case.
func (s *MongoStore) FindTrackedItem(ctx context.Context, repoURL, branch string) (*model.TrackedItem, error) {
	filter := bson.M{"options.url": repoURL, "options.branch": branch}
	var doc collectorItemDocument
	err := s.items.FindOne(ctx, filter, options.FindOne().SetCollation(caseInsensitive)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tracked item: %w", err)
	}
	item := doc.toModel()
	return &item, nil
}

// FindRepositoryToken returns the encrypted token of any tracked item for the repository.
func (s *MongoStore) FindRepositoryToken(ctx context.Context, repoURL string) (string, error) {
	filter := bson.M{
		"options.url":                 repoURL,
		"options.personalAccessToken": bson.M{"$exists": true, "$ne": ""},
	}
	var doc collectorItemDocument
	err := s.items.FindOne(ctx, filter, options.FindOne().SetCollation(caseInsensitive)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find repository token: %w", err)
	}
	return doc.Options.PersonalAccessToken, nil
}

// FindCommits returns stored commits for a revision ordered by ingestion time.
func (s *MongoStore) FindCommits(ctx context.Context, revision, repoURL, branch string) ([]model.Commit, error) {
	filter := bson.M{
		"scmRevisionNumber": revision,
		"scmUrl":            repoURL,
		"scmBranch":         branch,
	}
	opts := options.Find().
		SetCollation(caseInsensitive).
		SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := s.commits.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find commits: %w", err)
	}
	var docs []commitDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode commits: %w", err)
	}

	commits := make([]model.Commit, 0, len(docs))
	for _, doc := range docs {
		commits = append(commits, doc.toModel())
	}
	return commits, nil
}

// FindPullRequestByRevision matches the head or merge-event revision.
func (s *MongoStore) FindPullRequestByRevision(ctx context.Context, revision string) (*model.PullRequest, error) {
	return s.findPullRequest(ctx, bson.M{"$or": bson.A{
		bson.M{"scmRevisionNumber": revision},
		bson.M{"scmMergeEventRevisionNumber": revision},
	}})
}

// FindPullRequestByCommitRevision matches any commit carried by the pull request.
func (s *MongoStore) FindPullRequestByCommitRevision(ctx context.Context, revision string) (*model.PullRequest, error) {
	return s.findPullRequest(ctx, bson.M{"commits.scmRevisionNumber": revision})
}

func (s *MongoStore) findPullRequest(ctx context.Context, filter bson.M) (*model.PullRequest, error) {
	var doc gitRequestDocument
	err := s.pulls.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pull request: %w", err)
	}
	pr := doc.toModel()
	return &pr, nil
}

// SaveBatch writes created tracked items, reactivations and commits. Commits are
// replaced by id so a redelivered commit overwrites its earlier row.
func (s *MongoStore) SaveBatch(ctx context.Context, batch model.CommitBatch) error {
	created := make([]any, 0, len(batch.Create))
	for _, item := range batch.Create {
		doc, err := collectorItemFromModel(item)
		if err != nil {
			return err
		}
		created = append(created, doc)
	}
	reactivate := make([]primitive.ObjectID, 0, len(batch.Reactivate))
	for _, id := range batch.Reactivate {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return fmt.Errorf("tracked item id %q: %w", id, err)
		}
		reactivate = append(reactivate, oid)
	}
	writes := make([]mongo.WriteModel, 0, len(batch.Commits))
	for _, commit := range batch.Commits {
		doc, err := commitFromModel(commit)
		if err != nil {
			return err
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	ctx, span := telemetry.StartDependencySpan(ctx, "internal/store", "store.mongo.save_batch",
		attribute.Int("store.commits", len(writes)),
		attribute.Int("store.created_items", len(created)),
		attribute.Int("store.reactivated_items", len(reactivate)),
	)
	err := s.writeBatch(ctx, created, reactivate, writes)
	telemetry.EndSpan(span, err, "batch saved")
	return err
}

// writeBatch stores commits before touching tracked items, so a failed commit
// write leaves no new or reactivated items behind.
func (s *MongoStore) writeBatch(ctx context.Context, created []any, reactivate []primitive.ObjectID, writes []mongo.WriteModel) error {
	if len(writes) > 0 {
		if _, err := s.commits.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("write commits: %w", err)
		}
	}
	if len(created) > 0 {
		if _, err := s.items.InsertMany(ctx, created); err != nil {
			return fmt.Errorf("insert tracked items: %w", err)
		}
	}
	if len(reactivate) > 0 {
		update := bson.M{"$set": bson.M{
			"enabled":     true,
			"pushed":      true,
			"lastUpdated": s.Now().UnixMilli(),
		}}
		if _, err := s.items.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": reactivate}}, update); err != nil {
			return fmt.Errorf("reactivate tracked items: %w", err)
		}
	}
	return nil
}

type collectorItemDocument struct {
	ID          primitive.ObjectID   `bson:"_id"`
	Enabled     bool                 `bson:"enabled"`
	Pushed      bool                 `bson:"pushed"`
	LastUpdated int64                `bson:"lastUpdated"`
	Options     collectorItemOptions `bson:"options"`
}

type collectorItemOptions struct {
	URL                 string `bson:"url"`
	Branch              string `bson:"branch"`
	PersonalAccessToken string `bson:"personalAccessToken,omitempty"`
}

func (d collectorItemDocument) toModel() model.TrackedItem {
	return model.TrackedItem{
		ID:             d.ID.Hex(),
		RepoURL:        d.Options.URL,
		Branch:         d.Options.Branch,
		Enabled:        d.Enabled,
		Pushed:         d.Pushed,
		EncryptedToken: d.Options.PersonalAccessToken,
		LastUpdated:    fromMillis(d.LastUpdated),
	}
}

func collectorItemFromModel(item model.TrackedItem) (collectorItemDocument, error) {
	oid, err := primitive.ObjectIDFromHex(item.ID)
	if err != nil {
		return collectorItemDocument{}, fmt.Errorf("tracked item id %q: %w", item.ID, err)
	}
	return collectorItemDocument{
		ID:          oid,
		Enabled:     item.Enabled,
		Pushed:      item.Pushed,
		LastUpdated: toMillis(item.LastUpdated),
		Options: collectorItemOptions{
			URL:                 item.RepoURL,
			Branch:              item.Branch,
			PersonalAccessToken: item.EncryptedToken,
		},
	}, nil
}

type commitDocument struct {
	ID                       primitive.ObjectID `bson:"_id"`
	CollectorItemID          primitive.ObjectID `bson:"collectorItemId,omitempty"`
	ScmURL                   string             `bson:"scmUrl"`
	ScmBranch                string             `bson:"scmBranch"`
	ScmRevisionNumber        string             `bson:"scmRevisionNumber"`
	ScmAuthor                string             `bson:"scmAuthor"`
	ScmAuthorLogin           string             `bson:"scmAuthorLogin"`
	ScmAuthorType            string             `bson:"scmAuthorType,omitempty"`
	ScmAuthorLDAPDN          string             `bson:"scmAuthorLDAPDN,omitempty"`
	ScmCommitterLogin        string             `bson:"scmCommitterLogin"`
	ScmCommitLog             string             `bson:"scmCommitLog"`
	ScmCommitTimestamp       int64              `bson:"scmCommitTimestamp"`
	Timestamp                int64              `bson:"timestamp"`
	ScmParentRevisionNumbers []string           `bson:"scmParentRevisionNumbers"`
	FirstEverCommit          bool               `bson:"firstEverCommit"`
	Type                     string             `bson:"type,omitempty"`
	FilesAdded               []string           `bson:"filesAdded,omitempty"`
	FilesRemoved             []string           `bson:"filesRemoved,omitempty"`
	FilesModified            []string           `bson:"filesModified,omitempty"`
	Files                    []repoFileDocument `bson:"files,omitempty"`
	NumberOfChanges          int                `bson:"numberOfChanges"`
	PullNumber               string             `bson:"pullNumber,omitempty"`
}

type repoFileDocument struct {
	Filename string `bson:"filename"`
	Patch    string `bson:"patch,omitempty"`
}

func (d commitDocument) toModel() model.Commit {
	commit := model.Commit{
		ID:              d.ID.Hex(),
		RevisionNumber:  d.ScmRevisionNumber,
		RepoURL:         d.ScmURL,
		Branch:          d.ScmBranch,
		AuthorName:      d.ScmAuthor,
		AuthorLogin:     d.ScmAuthorLogin,
		AuthorType:      d.ScmAuthorType,
		AuthorLDAPDN:    d.ScmAuthorLDAPDN,
		CommitterLogin:  d.ScmCommitterLogin,
		Message:         d.ScmCommitLog,
		CommitTimestamp: fromMillis(d.ScmCommitTimestamp),
		Timestamp:       fromMillis(d.Timestamp),
		ParentRevisions: d.ScmParentRevisionNumbers,
		FirstEverCommit: d.FirstEverCommit,
		Type:            model.CommitType(d.Type),
		FilesAdded:      d.FilesAdded,
		FilesRemoved:    d.FilesRemoved,
		FilesModified:   d.FilesModified,
		NumberOfChanges: d.NumberOfChanges,
		PullNumber:      d.PullNumber,
	}
	if !d.CollectorItemID.IsZero() {
		commit.TrackedItemID = d.CollectorItemID.Hex()
	}
	for _, file := range d.Files {
		commit.Files = append(commit.Files, model.RepoFile{Filename: file.Filename, Patch: file.Patch})
	}
	return commit
}

func commitFromModel(commit model.Commit) (commitDocument, error) {
	id := primitive.NewObjectID()
	if commit.ID != "" {
		parsed, err := primitive.ObjectIDFromHex(commit.ID)
		if err != nil {
			return commitDocument{}, fmt.Errorf("commit id %q: %w", commit.ID, err)
		}
		id = parsed
	}
	doc := commitDocument{
		ID:                       id,
		ScmURL:                   commit.RepoURL,
		ScmBranch:                commit.Branch,
		ScmRevisionNumber:        commit.RevisionNumber,
		ScmAuthor:                commit.AuthorName,
		ScmAuthorLogin:           commit.AuthorLogin,
		ScmAuthorType:            commit.AuthorType,
		ScmAuthorLDAPDN:          commit.AuthorLDAPDN,
		ScmCommitterLogin:        commit.CommitterLogin,
		ScmCommitLog:             commit.Message,
		ScmCommitTimestamp:       toMillis(commit.CommitTimestamp),
		Timestamp:                toMillis(commit.Timestamp),
		ScmParentRevisionNumbers: commit.ParentRevisions,
		FirstEverCommit:          commit.FirstEverCommit,
		Type:                     string(commit.Type),
		FilesAdded:               commit.FilesAdded,
		FilesRemoved:             commit.FilesRemoved,
		FilesModified:            commit.FilesModified,
		NumberOfChanges:          commit.NumberOfChanges,
		PullNumber:               commit.PullNumber,
	}
	if commit.TrackedItemID != "" {
		itemID, err := primitive.ObjectIDFromHex(commit.TrackedItemID)
		if err != nil {
			return commitDocument{}, fmt.Errorf("tracked item id %q: %w", commit.TrackedItemID, err)
		}
		doc.CollectorItemID = itemID
	}
	for _, file := range commit.Files {
		doc.Files = append(doc.Files, repoFileDocument{Filename: file.Filename, Patch: file.Patch})
	}
	return doc, nil
}

type gitRequestDocument struct {
	ID                          primitive.ObjectID `bson:"_id"`
	Number                      string             `bson:"number"`
	ScmURL                      string             `bson:"scmUrl"`
	ScmBranch                   string             `bson:"scmBranch"`
	ScmRevisionNumber           string             `bson:"scmRevisionNumber"`
	ScmMergeEventRevisionNumber string             `bson:"scmMergeEventRevisionNumber"`
	Commits                     []struct {
		ScmRevisionNumber string `bson:"scmRevisionNumber"`
	} `bson:"commits"`
}

func (d gitRequestDocument) toModel() model.PullRequest {
	pr := model.PullRequest{
		ID:                 d.ID.Hex(),
		Number:             d.Number,
		RepoURL:            d.ScmURL,
		Branch:             d.ScmBranch,
		HeadRevision:       d.ScmRevisionNumber,
		MergeEventRevision: d.ScmMergeEventRevisionNumber,
	}
	for _, commit := range d.Commits {
		pr.CommitRevisions = append(pr.CommitRevisions, commit.ScmRevisionNumber)
	}
	return pr
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}
