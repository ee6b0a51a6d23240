package documentdb

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoClient giữ client và database của document store
type MongoClient struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Connect mở client và ping primary. timeout áp dụng cho connect,
// server selection và mặc định cho mỗi operation.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*MongoClient, error) {
	log.Println("[MONGO] Connecting to document store...")

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetTimeout(timeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	log.Printf("[MONGO] Connected (database: %s)", database)
	return &MongoClient{Client: client, DB: client.Database(database)}, nil
}

func (m *MongoClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return m.Client.Ping(ctx, readpref.Primary())
}

func (m *MongoClient) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	log.Println("[MONGO] Disconnecting...")
	return m.Client.Disconnect(ctx)
}
