// Package repository persists scraped property records. MongoDB is the
// optional query sink behind the HTTP API; file exports do not depend on it.
package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/models"
)

// PropertyFilter holds the query-side filters the API exposes
type PropertyFilter struct {
	City         string  `json:"city,omitempty"`
	Locality     string  `json:"locality,omitempty"`
	PropertyType string  `json:"property_type,omitempty"`
	BHK          string  `json:"bhk,omitempty"`
	PriceMinLakh float64 `json:"price_min_lakh,omitempty"`
	PriceMaxLakh float64 `json:"price_max_lakh,omitempty"`
	MinQuality   float64 `json:"min_quality,omitempty"`
}

// PaginationParams bound a query result page
type PaginationParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// PropertySearchResult is one page of query results with paging metadata
type PropertySearchResult struct {
	Properties  []models.PropertyRecord `json:"properties"`
	TotalItems  int64                   `json:"total_items"`
	TotalPages  int                     `json:"total_pages"`
	CurrentPage int                     `json:"current_page"`
	PageSize    int                     `json:"page_size"`
}

// PropertyRepository is the persistence contract the service layer uses
type PropertyRepository interface {
	SaveAll(ctx context.Context, records []*models.PropertyRecord) error
	FindWithFilters(ctx context.Context, filter PropertyFilter, pagination PaginationParams) (*PropertySearchResult, error)
	Count(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// MongoRepository stores records in a MongoDB collection keyed by url_hash
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *logger.Logger
}

// NewMongoRepository connects, pings and ensures the unique url_hash index
func NewMongoRepository(ctx context.Context, uri, dbName string) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	repo := &MongoRepository{
		client:     client,
		collection: client.Database(dbName).Collection("properties"),
		logger:     logger.NewLogger("repository"),
	}

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "url_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := repo.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		repo.logger.WithError(err).Warn("Failed to create unique index on url_hash")
	}

	return repo, nil
}

// SaveAll upserts records by url_hash in one bulk write. Records without a
// hash are skipped.
func (r *MongoRepository) SaveAll(ctx context.Context, records []*models.PropertyRecord) error {
	var writes []mongo.WriteModel
	for _, rec := range records {
		if rec.URLHash == "" {
			continue
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"url_hash": rec.URLHash}).
			SetReplacement(rec).
			SetUpsert(true))
	}
	if len(writes) == 0 {
		return nil
	}

	result, err := r.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to save properties: %v", err)
	}
	r.logger.WithFields(map[string]interface{}{
		"upserted": result.UpsertedCount,
		"modified": result.ModifiedCount,
	}).Info("Properties saved")
	return nil
}

// FindWithFilters queries the collection with the API filters and pagination
func (r *MongoRepository) FindWithFilters(ctx context.Context, filter PropertyFilter, pagination PaginationParams) (*PropertySearchResult, error) {
	if pagination.Page <= 0 {
		pagination.Page = 1
	}
	if pagination.PageSize <= 0 || pagination.PageSize > 100 {
		pagination.PageSize = 20
	}

	query := bson.M{}
	if filter.City != "" {
		query["city"] = filter.City
	}
	if filter.Locality != "" {
		query["locality"] = bson.M{"$regex": filter.Locality, "$options": "i"}
	}
	if filter.PropertyType != "" {
		query["property_type"] = filter.PropertyType
	}
	if filter.BHK != "" {
		query["bhk"] = filter.BHK
	}
	if filter.MinQuality > 0 {
		query["data_quality_score"] = bson.M{"$gte": filter.MinQuality}
	}

	// Price filtering works in lakh: crore-denominated records are matched
	// via their converted value
	if filter.PriceMinLakh > 0 || filter.PriceMaxLakh > 0 {
		price := bson.M{}
		if filter.PriceMinLakh > 0 {
			price["$gte"] = filter.PriceMinLakh
		}
		if filter.PriceMaxLakh > 0 {
			price["$lte"] = filter.PriceMaxLakh
		}
		query["$or"] = bson.A{
			bson.M{"price_unit": "lac", "price_value": price},
			bson.M{"price_unit": "crore", "price_value": divideRange(price, 100)},
		}
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count properties: %v", err)
	}

	skip := int64((pagination.Page - 1) * pagination.PageSize)
	opts := options.Find().
		SetSkip(skip).
		SetLimit(int64(pagination.PageSize)).
		SetSort(bson.D{{Key: "scraped_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %v", err)
	}
	defer cursor.Close(ctx)

	properties := []models.PropertyRecord{}
	if err := cursor.All(ctx, &properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %v", err)
	}

	totalPages := int((total + int64(pagination.PageSize) - 1) / int64(pagination.PageSize))
	return &PropertySearchResult{
		Properties:  properties,
		TotalItems:  total,
		TotalPages:  totalPages,
		CurrentPage: pagination.Page,
		PageSize:    pagination.PageSize,
	}, nil
}

// divideRange rescales a price range query for a different unit denomination
func divideRange(price bson.M, factor float64) bson.M {
	scaled := bson.M{}
	for op, v := range price {
		if f, ok := v.(float64); ok {
			scaled[op] = f / factor
		}
	}
	return scaled
}

// Count returns the total number of stored properties
func (r *MongoRepository) Count(ctx context.Context) (int64, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count properties: %v", err)
	}
	return total, nil
}

// Close disconnects the client
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
