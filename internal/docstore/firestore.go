package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore adapts a Cloud Firestore client. Firestore already returns
// timestamps as time.Time, so documents pass through unchanged.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore wraps an initialized client; see services.InitFirebase.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (s *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("firestore get %s/%s: %w", collection, id, err)
	}
	return fromSnapshot(snap), nil
}

func (s *Firestore) Set(ctx context.Context, collection, id string, fields Fields) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, map[string]interface{}(fields), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Firestore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, map[string]interface{}(fields))
	if err != nil {
		return "", fmt.Errorf("firestore add %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *Firestore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", f.Value)
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore query %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, fromSnapshot(snap))
	}
	return docs, nil
}

func (s *Firestore) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	ref := s.client.Collection(collection).Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return fmt.Errorf("firestore tx get %s/%s: %w", collection, id, err)
		}
		changes, err := fn(fromSnapshot(snap))
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		return tx.Set(ref, map[string]interface{}(changes), firestore.MergeAll)
	})
}

func (s *Firestore) Close() error {
	return s.client.Close()
}

func fromSnapshot(snap *firestore.DocumentSnapshot) Document {
	return Document{
		ID:         snap.Ref.ID,
		Fields:     Fields(snap.Data()),
		UpdateTime: snap.UpdateTime,
	}
}
