package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realty/site/internal/config"
	"realty/site/internal/db"
	"realty/site/internal/models"
)

// IContentService serves the editable page content (hero banners, copy blocks).
type IContentService interface {
	Load(ctx context.Context) error
	GetAllPublic(ctx context.Context) (map[string]interface{}, error)
	Get(ctx context.Context, key string) (*models.ContentEntry, error)
	GetString(ctx context.Context, key string, defaultValue string) string
	Set(ctx context.Context, key string, value interface{}, isPublic bool) error
	Delete(ctx context.Context, key string) error
	SubscribeToChanges(ctx context.Context) error
}

const (
	contentCollection    = "content"
	contentUpdateChannel = "content_updates"
)

// contentService keeps every entry cached in memory. Writes go to MongoDB and are
// announced on Redis so other instances reload.
type contentService struct {
	db    *mongo.Database
	cfg   *config.Config
	rdb   *redis.Client
	cache map[string]models.ContentEntry
	mutex sync.RWMutex
}

// NewContentService creates the service, loads the cache and, when Redis is
// configured, listens for updates until ctx is done.
func NewContentService(ctx context.Context, database *mongo.Database, cfg *config.Config, rdb *redis.Client) IContentService {
	s := &contentService{
		db:    database,
		cfg:   cfg,
		rdb:   rdb,
		cache: make(map[string]models.ContentEntry),
	}
	if err := s.Load(ctx); err != nil {
		log.Printf("WARNING: Failed to load site content from DB: %v", err)
	}
	if rdb != nil {
		go func() {
			if err := s.SubscribeToChanges(ctx); err != nil {
				log.Printf("Content Pub/Sub listener stopped: %v", err)
			}
		}()
	}
	return s
}

// Load replaces the cache with every entry in the DB.
func (s *contentService) Load(ctx context.Context) error {
	cursor, err := s.db.Collection(contentCollection).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to query content collection: %w", db.TranslateError(err))
	}
	defer cursor.Close(ctx)

	newCache := make(map[string]models.ContentEntry)
	for cursor.Next(ctx) {
		var entry models.ContentEntry
		if err := cursor.Decode(&entry); err != nil {
			log.Printf("Warning: Failed to decode content entry during load: %v", err)
			continue
		}
		newCache[entry.Key] = entry
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("error iterating content cursor: %w", err)
	}

	s.mutex.Lock()
	s.cache = newCache
	s.mutex.Unlock()
	log.Printf("Loaded %d content entries into cache from DB.", len(newCache))
	return nil
}

// GetAllPublic returns the public entries keyed by name. APP_NAME falls back to the configured name.
func (s *contentService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	public := map[string]interface{}{}
	s.mutex.RLock()
	for key, entry := range s.cache {
		if entry.Public {
			public[key] = entry.Value
		}
	}
	s.mutex.RUnlock()

	if _, exists := public["APP_NAME"]; !exists {
		public["APP_NAME"] = s.cfg.AppName
	}
	return public, nil
}

// Get returns one entry from the cache.
func (s *contentService) Get(ctx context.Context, key string) (*models.ContentEntry, error) {
	s.mutex.RLock()
	entry, exists := s.cache[key]
	s.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("content key '%s': %w", key, models.ErrNotFound)
	}
	return &entry, nil
}

// GetString returns a string entry or defaultValue.
func (s *contentService) GetString(ctx context.Context, key string, defaultValue string) string {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if str, ok := entry.Value.(string); ok {
		return str
	}
	log.Printf("Warning: Content key '%s' is not a string, using default.", key)
	return defaultValue
}

// Set upserts an entry, updates the local cache and publishes the key.
func (s *contentService) Set(ctx context.Context, key string, value interface{}, isPublic bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &models.ValidationError{Fields: []string{"key"}}
	}
	update := bson.M{
		"$set": bson.M{
			"key":    key,
			"value":  value,
			"public": isPublic,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.db.Collection(contentCollection).UpdateOne(ctx, bson.M{"key": key}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert content key '%s': %w", key, db.TranslateError(err))
	}

	s.mutex.Lock()
	s.cache[key] = models.ContentEntry{Key: key, Value: value, Public: isPublic}
	s.mutex.Unlock()

	s.publish(ctx, key)
	log.Printf("Updated content key '%s'.", key)
	return nil
}

// Delete removes an entry.
func (s *contentService) Delete(ctx context.Context, key string) error {
	res, err := s.db.Collection(contentCollection).DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return fmt.Errorf("failed to delete content key '%s': %w", key, db.TranslateError(err))
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("content key '%s': %w", key, models.ErrNotFound)
	}

	s.mutex.Lock()
	delete(s.cache, key)
	s.mutex.Unlock()

	s.publish(ctx, key)
	return nil
}

func (s *contentService) publish(ctx context.Context, key string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, contentUpdateChannel, key).Err(); err != nil {
		log.Printf("Warning: Failed to publish content update for key '%s': %v", key, err)
	}
}

// SubscribeToChanges reloads the cache on every update message until ctx is done.
func (s *contentService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		log.Println("Redis client not configured, cannot subscribe to content changes.")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, contentUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to receive confirmation from Redis Pub/Sub subscription: %w", err)
	}

	ch := pubsub.Channel()
	log.Println("Subscribed to Redis channel for content updates:", contentUpdateChannel)

	for {
		select {
		case <-ctx.Done():
			log.Println("Content Pub/Sub listener stopped.")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			log.Printf("Received content update on channel %s: %s", msg.Channel, msg.Payload)
			if err := s.Load(ctx); err != nil {
				log.Printf("ERROR reloading content from DB after notification: %v", err)
			}
		}
	}
}
