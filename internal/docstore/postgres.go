package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// timeMarker wraps timestamps inside jsonb so they decode back to time.Time
// instead of plain strings.
const timeMarker = "$time"

// DocumentRow is the single table backing every collection.
type DocumentRow struct {
	Collection string    `gorm:"primaryKey;size:128"`
	ID         string    `gorm:"primaryKey;size:128"`
	Data       []byte    `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

// TableName specifies the table name
func (DocumentRow) TableName() string {
	return "documents"
}

// Postgres stores documents as jsonb rows through gorm.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var row DocumentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("postgres get %s/%s: %w", collection, id, err)
	}
	return rowToDocument(row)
}

// Set relies on jsonb concatenation, which merges top-level keys the same
// way Firestore's MergeAll does for our flat documents.
func (s *Postgres) Set(ctx context.Context, collection, id string, fields Fields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	row := DocumentRow{Collection: collection, ID: id, Data: data, CreatedAt: now, UpdatedAt: now}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "data"}, Value: gorm.Expr(`"documents"."data" || excluded.data`)},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("postgres set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	data, err := encodeFields(fields)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	row := DocumentRow{Collection: collection, ID: id, Data: data, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("postgres create %s: %w", collection, err)
	}
	return id, nil
}

func (s *Postgres) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	q := s.db.WithContext(ctx).Where("collection = ?", collection)
	if len(filters) > 0 {
		match := Fields{}
		for _, f := range filters {
			match[f.Field] = f.Value
		}
		data, err := encodeFields(match)
		if err != nil {
			return nil, err
		}
		q = q.Where("data @> ?::jsonb", string(data))
	}

	var rows []DocumentRow
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres query %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := rowToDocument(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Update locks the row for the duration of fn.
func (s *Postgres) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row DocumentRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres lock %s/%s: %w", collection, id, err)
		}

		doc, err := rowToDocument(row)
		if err != nil {
			return err
		}
		changes, err := fn(doc)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}

		data, err := encodeFields(doc.Fields.Merge(changes))
		if err != nil {
			return err
		}
		return tx.Model(&DocumentRow{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]interface{}{"data": data, "updated_at": time.Now().UTC()}).Error
	})
}

func (s *Postgres) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func rowToDocument(row DocumentRow) (Document, error) {
	fields, err := decodeFields(row.Data)
	if err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", row.Collection, row.ID, err)
	}
	return Document{ID: row.ID, Fields: fields, UpdateTime: row.UpdatedAt}, nil
}

func encodeFields(fields Fields) ([]byte, error) {
	return json.Marshal(encodeValue(map[string]interface{}(fields)))
}

func encodeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return map[string]interface{}{timeMarker: t.UTC().Format(time.RFC3339Nano)}
	case *time.Time:
		if t == nil {
			return nil
		}
		return encodeValue(*t)
	case Fields:
		return encodeValue(map[string]interface{}(t))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = encodeValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = encodeValue(val)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = encodeValue(val)
		}
		return out
	}
	return v
}

func decodeFields(data []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return Fields{}, nil
	}
	return Fields(decodeValue(raw).(map[string]interface{})), nil
}

func decodeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		if s, ok := t[timeMarker].(string); ok && len(t) == 1 {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return ts
			}
		}
		for k, val := range t {
			t[k] = decodeValue(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = decodeValue(val)
		}
		return t
	}
	return v
}
