// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package qdrant stores chunk vectors in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/sigil-dev/docqa/internal/vectorstore"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// recordIDKey is the payload key holding the original record ID, since
// Qdrant point IDs must be UUIDs or integers.
const recordIDKey = "record_id"

func init() {
	vectorstore.RegisterBackend("qdrant", func(ctx context.Context, cfg vectorstore.Config) (vectorstore.Store, error) {
		return New(ctx, cfg)
	})
}

var _ vectorstore.Store = (*Store)(nil)

// Store implements vectorstore.Store on a Qdrant collection using cosine
// distance.
type Store struct {
	client     *qdrant.Client
	collection string
	dimensions int
}

// New connects to Qdrant and creates the collection and its pdf_hash payload
// index when they do not exist.
func New(ctx context.Context, cfg vectorstore.Config) (*Store, error) {
	host := cfg.Qdrant.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Qdrant.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeVectorCollectionFailure, "connecting to qdrant at %s:%d", host, port)
	}

	s := &Store{client: client, collection: cfg.Collection, dimensions: cfg.Dimensions}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return dqerr.ClassifyUpstream(err, dqerr.CodeVectorUpstreamUnreachable, dqerr.CodeVectorCollectionFailure, "checking collection %s", s.collection)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return dqerr.Wrapf(err, dqerr.CodeVectorCollectionFailure, "creating collection %s", s.collection)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      vectorstore.KeyDocumentHash,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return dqerr.Wrapf(err, dqerr.CodeVectorCollectionFailure, "indexing %s on %s", vectorstore.KeyDocumentHash, s.collection)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if err := vectorstore.CheckRecords(records, s.dimensions); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(payload(r)),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return dqerr.ClassifyUpstream(err, dqerr.CodeVectorUpstreamUnreachable, dqerr.CodeVectorUpsertFailure, "upserting %d points into %s", len(points), s.collection)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	qf, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, dqerr.ClassifyUpstream(err, dqerr.CodeVectorUpstreamUnreachable, dqerr.CodeVectorQueryFailure, "querying %s", s.collection)
	}

	matches := make([]vectorstore.Match, 0, len(points))
	for _, p := range points {
		id, md := fromPayload(p.GetPayload())
		if id == "" {
			id = p.GetId().GetUuid()
		}
		matches = append(matches, vectorstore.Match{ID: id, Score: float64(p.GetScore()), Metadata: md})
	}
	return matches, nil
}

func (s *Store) Exists(ctx context.Context, filter vectorstore.Filter) (bool, error) {
	n, err := s.Count(ctx, filter)
	return n > 0, err
}

func (s *Store) Count(ctx context.Context, filter vectorstore.Filter) (int, error) {
	qf, err := buildFilter(filter)
	if err != nil {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, dqerr.ClassifyUpstream(err, dqerr.CodeVectorUpstreamUnreachable, dqerr.CodeVectorQueryFailure, "counting points in %s", s.collection)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// PointID maps a record ID to a deterministic UUIDv5.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

func payload(r vectorstore.Record) map[string]any {
	return map[string]any{
		recordIDKey:                 r.ID,
		vectorstore.KeyText:         r.Metadata.Text,
		vectorstore.KeyDocumentHash: r.Metadata.DocumentHash,
		vectorstore.KeyChunkID:      r.Metadata.ChunkID,
		vectorstore.KeyPage:         r.Metadata.Page,
	}
}

func fromPayload(p map[string]*qdrant.Value) (string, vectorstore.Metadata) {
	return p[recordIDKey].GetStringValue(), vectorstore.Metadata{
		Text:         p[vectorstore.KeyText].GetStringValue(),
		DocumentHash: p[vectorstore.KeyDocumentHash].GetStringValue(),
		ChunkID:      int(p[vectorstore.KeyChunkID].GetIntegerValue()),
		Page:         int(p[vectorstore.KeyPage].GetIntegerValue()),
	}
}

func buildFilter(filter vectorstore.Filter) (*qdrant.Filter, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	qf := &qdrant.Filter{Must: make([]*qdrant.Condition, 0, len(keys))}
	for _, k := range keys {
		switch v := filter[k].(type) {
		case string:
			qf.Must = append(qf.Must, qdrant.NewMatch(k, v))
		case int:
			qf.Must = append(qf.Must, qdrant.NewMatchInt(k, int64(v)))
		case int64:
			qf.Must = append(qf.Must, qdrant.NewMatchInt(k, v))
		default:
			qf.Must = append(qf.Must, qdrant.NewMatch(k, fmt.Sprint(v)))
		}
	}
	return qf, nil
}
