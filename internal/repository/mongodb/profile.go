package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/career-connect/internal/apperror"
	"github.com/sakif/career-connect/internal/model"
	"github.com/sakif/career-connect/internal/repository"
)

var _ repository.UserProfileRepository = (*Store)(nil)

// profileDocument is the stored shape. Attributes are inlined, so a profile
// is one flat document: {_id, uid, email, createdAt, updatedAt, ...attrs}.
type profileDocument struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	ExternalID string        `bson:"uid"`
	Email      string        `bson:"email"`
	CreatedAt  time.Time     `bson:"createdAt"`
	UpdatedAt  time.Time     `bson:"updatedAt"`
	Attributes bson.M        `bson:",inline"`
}

func (d *profileDocument) toModel() *model.UserProfile {
	attrs := make(map[string]any, len(d.Attributes))
	for k, v := range d.Attributes {
		attrs[k] = v
	}
	return &model.UserProfile{
		InternalID: d.ID.Hex(),
		ExternalID: d.ExternalID,
		Email:      d.Email,
		Attributes: attrs,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

func byExternalID(externalID string) bson.D {
	return bson.D{{Key: "uid", Value: externalID}}
}

// setFields builds the $set stage of the update pipeline for ch. Values go
// through $literal so strings like "$x" and nested objects are stored as
// data, not read as expressions. Reserved keys in the attribute map are
// skipped; email and updatedAt come from the typed fields.
func setFields(ch model.Changes) bson.D {
	set := make(bson.D, 0, len(ch.Attributes)+2)
	for k, v := range ch.Attributes {
		if model.IsReserved(k) {
			continue
		}
		set = append(set, bson.E{Key: k, Value: literal(v)})
	}
	if ch.Email != "" {
		set = append(set, bson.E{Key: model.FieldEmail, Value: literal(ch.Email)})
	}
	set = append(set, bson.E{Key: model.FieldUpdatedAt, Value: updatedAtExpr(ch.At)})
	return set
}

func literal(v any) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

// updatedAtExpr is model.NextUpdatedAt evaluated by the server against the
// stored value: at, or the stored updatedAt plus 1ms when at is not later.
// A new document has no stored value and gets at.
func updatedAtExpr(at time.Time) bson.D {
	stored := "$" + model.FieldUpdatedAt
	return bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: stored}}, "missing"}}},
		at,
		bson.D{{Key: "$max", Value: bson.A{at, bson.D{{Key: "$add", Value: bson.A{stored, 1}}}}}},
	}}}
}

// mergeUpdate is the pipeline Merge runs on an existing document.
func mergeUpdate(ch model.Changes) mongo.Pipeline {
	return mongo.Pipeline{{{Key: "$set", Value: setFields(ch)}}}
}

// upsertUpdate is the pipeline Upsert runs. _id and createdAt are only filled
// in when absent, which pipelines express with $ifNull instead of
// $setOnInsert. _id is generated here so a created profile's internal id is
// known without a second read.
func upsertUpdate(id bson.ObjectID, ch model.Changes) mongo.Pipeline {
	set := setFields(ch)
	set = append(set,
		bson.E{Key: model.FieldInternalID, Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + model.FieldInternalID, id}}}},
		bson.E{Key: model.FieldCreatedAt, Value: bson.D{{Key: "$ifNull", Value: bson.A{"$" + model.FieldCreatedAt, ch.At}}}},
	)
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

// Upsert creates or merges the profile in one FindOneAndUpdate.
//
// The command returns the document as it was BEFORE the update:
//   - no document → the server inserted one; we know its full contents
//   - a document  → applying ch to it locally reproduces what the server
//     wrote, including the updatedAt the pipeline computed from it
//
// A racing insert on the unique uid index can surface as a duplicate key
// error; the retry then matches the winner's document and takes the update path.
func (s *Store) Upsert(ctx context.Context, externalID string, ch model.Changes) (*model.UserProfile, bool, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var (
		before profileDocument
		err    error
	)
	for attempt := 0; attempt < 2; attempt++ {
		id := bson.NewObjectID()
		err = s.users.FindOneAndUpdate(ctx, byExternalID(externalID), upsertUpdate(id, ch), opts).Decode(&before)

		if errors.Is(err, mongo.ErrNoDocuments) {
			p := model.NewProfile(externalID, ch)
			p.InternalID = id.Hex()
			return p, true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, false, apperror.Conflict("user", externalID)
		}
		return nil, false, classify("upserting user "+externalID, err)
	}

	p := before.toModel()
	p.Apply(ch)
	return p, false, nil
}

// GetByExternalID returns the profile for uid or apperror.ErrNotFound.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*model.UserProfile, error) {
	var doc profileDocument
	err := s.users.FindOne(ctx, byExternalID(externalID)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", externalID)
		}
		return nil, classify("getting user "+externalID, err)
	}
	return doc.toModel(), nil
}

// List returns every profile in natural (insertion) order.
func (s *Store) List(ctx context.Context) ([]model.UserProfile, error) {
	cursor, err := s.users.Find(ctx, bson.D{})
	if err != nil {
		return nil, classify("listing users", err)
	}

	var docs []profileDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("reading users", err)
	}

	profiles := make([]model.UserProfile, 0, len(docs))
	for i := range docs {
		profiles = append(profiles, *docs[i].toModel())
	}
	return profiles, nil
}

// Merge applies ch to an existing profile and returns the stored result.
func (s *Store) Merge(ctx context.Context, externalID string, ch model.Changes) (*model.UserProfile, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var after profileDocument
	err := s.users.FindOneAndUpdate(ctx,
		byExternalID(externalID),
		mergeUpdate(ch),
		opts,
	).Decode(&after)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", externalID)
		}
		return nil, classify("updating user "+externalID, err)
	}
	return after.toModel(), nil
}

// Delete removes the profile, or returns apperror.ErrNotFound if none matched.
func (s *Store) Delete(ctx context.Context, externalID string) error {
	res, err := s.users.DeleteOne(ctx, byExternalID(externalID))
	if err != nil {
		return classify("deleting user "+externalID, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("user", externalID)
	}
	return nil
}
