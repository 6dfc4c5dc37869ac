package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"flowscan/internal/config"
	"flowscan/internal/flowscan"
	"flowscan/internal/model"
	"flowscan/internal/schema"
)

// documentCollection is the subset of *mongo.Collection used for ingestion.
type documentCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// documentDatabase hands out collections by name.
type documentDatabase interface {
	Collection(name string) documentCollection
}

type mongoDatabaseHandle struct {
	db *mongo.Database
}

func (h mongoDatabaseHandle) Collection(name string) documentCollection {
	return h.db.Collection(name)
}

// MongoDatabase implements flowscan.Backend for a MongoDB deployment.
// Setup never deletes: existing collections and documents are left intact.
type MongoDatabase struct {
	cfg    config.DatabaseConfig
	client *mongo.Client
	db     documentDatabase
	logger flowscan.Logger
}

// NewMongoDatabase creates an unconnected document backend.
func NewMongoDatabase(cfg config.DatabaseConfig, logger flowscan.Logger) (*MongoDatabase, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("uri required for mongo database")
	}
	if cfg.DatabaseName == "" {
		return nil, fmt.Errorf("database_name required for mongo database")
	}
	return &MongoDatabase{cfg: cfg, logger: logger}, nil
}

func (m *MongoDatabase) Kind() string { return config.DatabaseMongo }

func (m *MongoDatabase) Connect(ctx context.Context) error {
	uri, err := mongoURI(m.cfg.URI, m.cfg.Options)
	if err != nil {
		return &flowscan.ConnectionError{Backend: m.Kind(), Err: err}
	}

	timeout := m.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return &flowscan.ConnectionError{Backend: m.Kind(), Err: err}
	}

	// Connect is lazy; a ping surfaces network and auth failures now.
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return &flowscan.ConnectionError{Backend: m.Kind(), Err: fmt.Errorf("ping: %w", err)}
	}

	m.attach(client)
	m.logger.Debug("mongo connection established", "database", m.cfg.DatabaseName)
	return nil
}

// attach keeps the client and selects the configured database, so a connected backend
// accepts Persist without Setup.
func (m *MongoDatabase) attach(client *mongo.Client) {
	m.client = client
	m.db = mongoDatabaseHandle{db: client.Database(m.cfg.DatabaseName)}
}

// Setup makes sure the configured database is selected. MongoDB creates it on first
// insert, and nothing already stored is touched.
func (m *MongoDatabase) Setup(_ context.Context) error {
	if m.client == nil {
		return &flowscan.ProvisionError{Backend: m.Kind(), Step: "select database", Err: errors.New("not connected")}
	}
	if m.db == nil {
		m.attach(m.client)
	}
	return nil
}

// Persist inserts the flow document, then one document per review in order.
// flowId integrity is not enforced by MongoDB; the Store checks it before calling.
func (m *MongoDatabase) Persist(ctx context.Context, flow *model.Flow) error {
	if m.db == nil {
		return &flowscan.PersistError{Entity: flowscan.EntityFlow, FlowID: flow.ID, Err: errors.New("not connected")}
	}

	flows, reviews := schema.Flows(), schema.Reviews()

	doc := flowRecord(flow, m.NormalizeTimestamp).document(flows)
	if _, err := m.db.Collection(flows.Name).InsertOne(ctx, doc); err != nil {
		return &flowscan.PersistError{Entity: flowscan.EntityFlow, FlowID: flow.ID, Err: err}
	}

	coll := m.db.Collection(reviews.Name)
	for i := range flow.Reviews {
		doc := reviewRecord(&flow.Reviews[i], m.NormalizeTimestamp).document(reviews)
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return &flowscan.PersistError{Entity: flowscan.EntityReview, Index: i, FlowID: flow.ID, Err: err}
		}
	}
	return nil
}

func (m *MongoDatabase) Disconnect(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	m.db = nil
	return err
}

// NormalizeTimestamp returns t unchanged; MongoDB stores native dates.
func (m *MongoDatabase) NormalizeTimestamp(t time.Time) any {
	return t
}

// document renders the record as an ordered BSON document. The key field becomes _id.
func (rec record) document(t schema.Table) bson.D {
	doc := make(bson.D, 0, len(t.Fields))
	for _, f := range t.Fields {
		key := f.Name
		if f.Kind == schema.KindKey {
			key = "_id"
		}
		doc = append(doc, bson.E{Key: key, Value: rec[f.Name]})
	}
	return doc
}

// mongoURI merges arbitrary backend options into the connection string query.
// Options already present in the URI are overridden.
func mongoURI(raw string, opts map[string]any) (string, error) {
	if len(opts) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing mongo uri: %w", err)
	}

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := u.Query()
	for _, k := range keys {
		q.Set(k, fmt.Sprint(opts[k]))
	}
	u.RawQuery = q.Encode()
	// A bare host URI needs the path separator before the query.
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Compile-time check that MongoDatabase implements flowscan.Backend interface
var _ flowscan.Backend = (*MongoDatabase)(nil)
