package coloyalty

import (
	"context"
	"fmt"
	"os"
	"time"

	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ReportsDB struct {
	mgo  *mongo.Client
	coll *mongo.Collection
}

func NewReportsDB() (*ReportsDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mng := os.Getenv("LEDGER_MONGO")
	if mng == "" {
		return nil, fmt.Errorf("env LEDGER_MONGO is not set")
	}

	options := options.Client().ApplyURI("mongodb://" + mng)
	client, err := mongo.Connect(ctx, options)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}
	db := client.Database("ledgerDB")
	coll := db.Collection("advisor_reports")

	return &ReportsDB{client, coll}, nil
}

func (r *ReportsDB) SaveReport(ctx context.Context, report models.Report) error {
	_, err := r.coll.InsertOne(ctx, report)
	return err
}

// Последние отчеты; пустой kind - все виды
func (r *ReportsDB) GetReports(ctx context.Context, kind string, limit int64) ([]models.Report, error) {
	filter := bson.M{}
	if kind != "" {
		filter["kind"] = kind
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	result, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer result.Close(ctx)

	reports := make([]models.Report, 0)
	for result.Next(ctx) {
		var report models.Report
		err := result.Decode(&report)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, result.Err()
}

func (r *ReportsDB) Close(ctx context.Context) error {
	return r.mgo.Disconnect(ctx)
}
