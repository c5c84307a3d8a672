package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dynamatics/dynamatics/pkg/dataflow"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const flowsCollection = "flows"

var ErrFlowNotFound = errors.New("flow not found")

// Flow is a saved graph definition. The graph itself is stored exactly as
// submitted so it can be handed back to the engine unchanged.
type Flow struct {
	ID          string             `bson:"_id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Graph       dataflow.GraphSpec `bson:"graph" json:"graph"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

type FlowRepositoryDependencies struct {
	Database *mongo.Database
}

// FlowRepository persists flow definitions in MongoDB.
type FlowRepository struct {
	collection *mongo.Collection
}

func NewFlowRepository(deps FlowRepositoryDependencies) *FlowRepository {
	return &FlowRepository{
		collection: deps.Database.Collection(flowsCollection),
	}
}

func (r *FlowRepository) Create(ctx context.Context, flow Flow) (Flow, error) {
	now := time.Now().UTC()
	flow.ID = uuid.NewString()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, flow); err != nil {
		return Flow{}, err
	}
	return flow, nil
}

func (r *FlowRepository) Get(ctx context.Context, id string) (Flow, error) {
	var flow Flow
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&flow)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Flow{}, ErrFlowNotFound
	}
	if err != nil {
		return Flow{}, err
	}
	return flow, nil
}

func (r *FlowRepository) List(ctx context.Context) ([]Flow, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	flows := []Flow{}
	if err := cursor.All(ctx, &flows); err != nil {
		return nil, err
	}
	return flows, nil
}

func (r *FlowRepository) Update(ctx context.Context, flow Flow) (Flow, error) {
	flow.UpdatedAt = time.Now().UTC()

	update := bson.M{"$set": bson.M{
		"name":        flow.Name,
		"description": flow.Description,
		"graph":       flow.Graph,
		"updated_at":  flow.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": flow.ID}, update)
	if err != nil {
		return Flow{}, err
	}
	if result.MatchedCount == 0 {
		return Flow{}, ErrFlowNotFound
	}
	return r.Get(ctx, flow.ID)
}

func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrFlowNotFound
	}
	return nil
}
