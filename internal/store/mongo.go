// server/internal/store/mongo.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"relief-dispatch-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	requestsCollection   = "relief_requests"
	requestersCollection = "requesters"
	centresCollection    = "relief_centres"
	usersCollection      = "users"
)

// Mongo persists everything in one database. A unique partial index on
// activeVolunteerID makes the one-active-dispatch-per-volunteer rule hold
// even across API replicas.
type Mongo struct {
	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// EnsureIndexes is idempotent; call it once at startup.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(requestsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reliefCentreID", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{
			Keys: bson.D{{Key: "dispatch.id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"dispatch.id": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "activeVolunteerID", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"activeVolunteerID": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("relief request indexes: %w", err)
	}
	_, err = m.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

func (m *Mongo) requests() *mongo.Collection { return m.db.Collection(requestsCollection) }

func notFound(err error, what, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

func (m *Mongo) CreateRequest(ctx context.Context, r *models.ReliefRequest) error {
	if _, err := m.requests().InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("request %s: %w", r.ID, models.ErrAlreadyExists)
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (m *Mongo) findRequest(ctx context.Context, filter bson.M, what, id string) (*models.ReliefRequest, error) {
	var r models.ReliefRequest
	if err := m.requests().FindOne(ctx, filter).Decode(&r); err != nil {
		return nil, notFound(err, what, id)
	}
	return &r, nil
}

func (m *Mongo) GetRequest(ctx context.Context, id string) (*models.ReliefRequest, error) {
	return m.findRequest(ctx, bson.M{"_id": id}, "request", id)
}

func (m *Mongo) GetRequestByDispatch(ctx context.Context, dispatchID string) (*models.ReliefRequest, error) {
	return m.findRequest(ctx, bson.M{"dispatch.id": dispatchID}, "dispatch", dispatchID)
}

func (m *Mongo) ActiveForVolunteer(ctx context.Context, volunteerID string) (*models.ReliefRequest, error) {
	return m.findRequest(ctx, bson.M{"activeVolunteerID": volunteerID}, "active dispatch for", volunteerID)
}

func (m *Mongo) ListRequests(ctx context.Context, f RequestFilter) ([]*models.ReliefRequest, error) {
	filter := bson.M{}
	if f.CentreID != "" {
		filter["reliefCentreID"] = f.CentreID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cursor, err := m.requests().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*models.ReliefRequest, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	return out, nil
}

// Claim is a single conditional update. When it matches nothing the
// current document is read back only to pick the right error.
func (m *Mongo) Claim(ctx context.Context, requestID string, d models.Dispatch, at time.Time) (*models.ReliefRequest, error) {
	filter := bson.M{
		"_id":      requestID,
		"status":   models.StatusPending,
		"dispatch": bson.M{"$exists": false},
	}
	update := bson.M{
		"$set": bson.M{
			"status":            models.StatusAccepted,
			"dispatch":          d,
			"activeVolunteerID": d.Volunteer.ID,
			"updatedAt":         at,
		},
		"$push": bson.M{"history": models.StatusEntry{Status: models.StatusAccepted, By: d.Volunteer.ID, At: at}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.ReliefRequest
	err := m.requests().FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	switch {
	case err == nil:
		return &out, nil
	case mongo.IsDuplicateKeyError(err):
		return nil, fmt.Errorf("volunteer %s: %w", d.Volunteer.ID, models.ErrVolunteerBusy)
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, fmt.Errorf("claim request %s: %w", requestID, err)
	}

	cur, err := m.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if cur.Dispatch != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrAlreadyClaimed)
	}
	return nil, fmt.Errorf("request %s is %s: %w", requestID, cur.Status, models.ErrInvalidTransition)
}

func (m *Mongo) Transition(ctx context.Context, requestID string, from, to models.Status, g TransitionGuard, by string, at time.Time) (*models.ReliefRequest, error) {
	filter := bson.M{"_id": requestID, "status": from}
	if g.VolunteerID != "" {
		filter["dispatch.volunteer.id"] = g.VolunteerID
	}
	update := bson.M{
		"$set":  bson.M{"status": to, "updatedAt": at},
		"$push": bson.M{"history": models.StatusEntry{Status: to, By: by, At: at}},
	}
	if !to.Active() {
		update["$unset"] = bson.M{"activeVolunteerID": ""}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.ReliefRequest
	err := m.requests().FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("transition request %s: %w", requestID, err)
	}

	cur, err := m.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if g.VolunteerID != "" && (cur.Dispatch == nil || cur.Dispatch.Volunteer.ID != g.VolunteerID) {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotAuthorized)
	}
	return nil, fmt.Errorf("request %s is %s, not %s: %w", requestID, cur.Status, from, models.ErrInvalidTransition)
}

func (m *Mongo) AddProof(ctx context.Context, dispatchID string, p models.DeliveryProof) error {
	res, err := m.requests().UpdateOne(ctx,
		bson.M{"dispatch.id": dispatchID},
		bson.M{"$push": bson.M{"dispatch.proofs": p}},
	)
	if err != nil {
		return fmt.Errorf("add proof to %s: %w", dispatchID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNotFound)
	}
	return nil
}

// --- requesters ---

func (m *Mongo) CreateRequester(ctx context.Context, r *models.Requester) error {
	_, err := m.db.Collection(requestersCollection).InsertOne(ctx, r)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("requester %s: %w", r.DeviceID, models.ErrAlreadyExists)
		}
		return fmt.Errorf("insert requester %s: %w", r.DeviceID, err)
	}
	return nil
}

func (m *Mongo) UpdateRequester(ctx context.Context, deviceID, fullName, phone string, at time.Time) (*models.Requester, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r models.Requester
	err := m.db.Collection(requestersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": deviceID},
		bson.M{"$set": bson.M{"fullName": fullName, "phone": phone, "updatedAt": at}},
		opts,
	).Decode(&r)
	if err != nil {
		return nil, notFound(err, "requester", deviceID)
	}
	return &r, nil
}

func (m *Mongo) GetRequester(ctx context.Context, deviceID string) (*models.Requester, error) {
	var r models.Requester
	if err := m.db.Collection(requestersCollection).FindOne(ctx, bson.M{"_id": deviceID}).Decode(&r); err != nil {
		return nil, notFound(err, "requester", deviceID)
	}
	return &r, nil
}

func (m *Mongo) BumpTokenVersion(ctx context.Context, deviceID string) (*models.Requester, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var r models.Requester
	err := m.db.Collection(requestersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": deviceID},
		bson.M{"$inc": bson.M{"tokenVersion": 1}},
		opts,
	).Decode(&r)
	if err != nil {
		return nil, notFound(err, "requester", deviceID)
	}
	return &r, nil
}

// --- centres ---

func (m *Mongo) ListCentres(ctx context.Context) ([]models.ReliefCentre, error) {
	cursor, err := m.db.Collection(centresCollection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query relief centres: %w", err)
	}
	defer cursor.Close(ctx)

	centres := make([]models.ReliefCentre, 0)
	if err := cursor.All(ctx, &centres); err != nil {
		return nil, fmt.Errorf("decode relief centres: %w", err)
	}
	return centres, nil
}

func (m *Mongo) GetCentre(ctx context.Context, id string) (*models.ReliefCentre, error) {
	var c models.ReliefCentre
	if err := m.db.Collection(centresCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, notFound(err, "relief centre", id)
	}
	return &c, nil
}

func (m *Mongo) CreateCentre(ctx context.Context, c *models.ReliefCentre) error {
	if _, err := m.db.Collection(centresCollection).InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("relief centre %s: %w", c.ID, models.ErrAlreadyExists)
		}
		return fmt.Errorf("insert relief centre: %w", err)
	}
	return nil
}

func (m *Mongo) UpdateCentre(ctx context.Context, c *models.ReliefCentre) error {
	res, err := m.db.Collection(centresCollection).UpdateOne(ctx, bson.M{"_id": c.ID}, bson.M{"$set": bson.M{
		"name":      c.Name,
		"latitude":  c.Latitude,
		"longitude": c.Longitude,
		"capacity":  c.Capacity,
		"status":    c.Status,
		"updatedAt": c.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update relief centre %s: %w", c.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("relief centre %s: %w", c.ID, models.ErrNotFound)
	}
	return nil
}

func (m *Mongo) DeleteCentre(ctx context.Context, id string) error {
	res, err := m.db.Collection(centresCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete relief centre %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("relief centre %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// --- users ---

func (m *Mongo) CreateUser(ctx context.Context, u *models.User) error {
	cp := *u
	cp.Email = strings.ToLower(u.Email)
	if _, err := m.db.Collection(usersCollection).InsertOne(ctx, cp); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user %s: %w", u.Email, models.ErrAlreadyExists)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *Mongo) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := m.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (m *Mongo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := m.db.Collection(usersCollection).FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&u); err != nil {
		return nil, notFound(err, "user", email)
	}
	return &u, nil
}
