// Package firestore stores shipping records in Cloud Firestore, one document
// per task id.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"docai/internal/domain"
	"docai/internal/port"
)

// NewClient creates a Firestore client for the given project.
func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

type shippingRecordRepo struct {
	client     *firestore.Client
	collection string
}

// NewShippingRecordRepo creates a Firestore-backed ShippingRecordRepository.
func NewShippingRecordRepo(client *firestore.Client, collection string) port.ShippingRecordRepository {
	return &shippingRecordRepo{client: client, collection: collection}
}

// recordDoc is the stored document shape. Nested structures keep their JSON
// field names.
type recordDoc struct {
	TaskID        string         `firestore:"task_id"`
	BillOfLading  map[string]any `firestore:"bill_of_lading"`
	ParsedContent string         `firestore:"parsed_content"`
	MetaInfo      map[string]any `firestore:"meta_info"`
	CreatedAt     time.Time      `firestore:"created_at"`
}

func toDoc(rec *domain.ShippingRecord) (*recordDoc, error) {
	bl, err := toMap(rec.BillOfLading)
	if err != nil {
		return nil, fmt.Errorf("encode bill_of_lading: %w", err)
	}
	meta, err := toMap(rec.MetaInfo)
	if err != nil {
		return nil, fmt.Errorf("encode meta_info: %w", err)
	}
	return &recordDoc{
		TaskID:        rec.TaskID,
		BillOfLading:  bl,
		ParsedContent: rec.ParsedContent,
		MetaInfo:      meta,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

func (d *recordDoc) toRecord() (*domain.ShippingRecord, error) {
	rec := &domain.ShippingRecord{
		TaskID:        d.TaskID,
		ParsedContent: d.ParsedContent,
		CreatedAt:     d.CreatedAt.UTC(),
	}
	if err := fromMap(d.BillOfLading, &rec.BillOfLading); err != nil {
		return nil, fmt.Errorf("decode bill_of_lading: %w", err)
	}
	if err := fromMap(d.MetaInfo, &rec.MetaInfo); err != nil {
		return nil, fmt.Errorf("decode meta_info: %w", err)
	}
	return rec, nil
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (r *shippingRecordRepo) FindByTaskID(ctx context.Context, taskID string) (*domain.ShippingRecord, error) {
	snap, err := r.client.Collection(r.collection).Doc(taskID).Get(ctx)
	if err != nil {
		return nil, classify("shippingRecordRepo.FindByTaskID", err)
	}
	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("shippingRecordRepo.FindByTaskID: %w", err)
	}
	return doc.toRecord()
}

// Insert uses Create, which fails when a document with the same id exists.
func (r *shippingRecordRepo) Insert(ctx context.Context, rec *domain.ShippingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	doc, err := toDoc(rec)
	if err != nil {
		return fmt.Errorf("shippingRecordRepo.Insert: %w", err)
	}
	if _, err := r.client.Collection(r.collection).Doc(rec.TaskID).Create(ctx, doc); err != nil {
		return classify("shippingRecordRepo.Insert", err)
	}
	return nil
}

func (r *shippingRecordRepo) List(ctx context.Context, offset, limit int) ([]domain.ShippingRecord, int, error) {
	coll := r.client.Collection(r.collection)

	agg, err := coll.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return nil, 0, classify("shippingRecordRepo.List", err)
	}
	total := 0
	if v, ok := agg["total"].(*firestorepb.Value); ok {
		total = int(v.GetIntegerValue())
	}

	q := r.newestFirst().Offset(offset).Limit(limit)
	records, err := readRecords(ctx, q, "shippingRecordRepo.List")
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListAfter resumes after the cursor's document instead of skipping by
// offset, so documents created during an export never shift later pages.
func (r *shippingRecordRepo) ListAfter(ctx context.Context, after *port.RecordCursor, limit int) ([]domain.ShippingRecord, error) {
	q := r.newestFirst()
	if after != nil {
		q = q.StartAfter(after.CreatedAt, after.TaskID)
	}
	return readRecords(ctx, q.Limit(limit), "shippingRecordRepo.ListAfter")
}

// newestFirst orders by creation time with the document id (the task id) as
// the tie breaker.
func (r *shippingRecordRepo) newestFirst() firestore.Query {
	return r.client.Collection(r.collection).
		OrderBy("created_at", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
}

func readRecords(ctx context.Context, q firestore.Query, op string) ([]domain.ShippingRecord, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var records []domain.ShippingRecord
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(op, err)
		}
		var doc recordDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rec, err := doc.toRecord()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, *rec)
	}
	if records == nil {
		records = []domain.ShippingRecord{}
	}
	return records, nil
}

func (r *shippingRecordRepo) Ping(ctx context.Context) error {
	iter := r.client.Collection(r.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return &domain.StoreUnavailableError{Op: "shippingRecordRepo.Ping", Err: err}
	}
	return nil
}

func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.AlreadyExists:
		return domain.ErrUniquenessViolation
	case codes.NotFound:
		return domain.ErrRecordNotFound
	}
	return &domain.StoreUnavailableError{Op: op, Err: err}
}
