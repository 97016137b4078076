package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	GetRecord    = `SELECT fields, version, created_at FROM RECORDS WHERE type=$1 AND id=$2;`
	InsertRecord = `INSERT INTO RECORDS (id, type, fields)
						VALUES ($1, $2, $3)
						RETURNING id;`
	UpdateRecord = `UPDATE RECORDS
						SET fields = fields || $3::jsonb
						WHERE type=$1 AND id=$2;`
	UpdateRecordIf = `UPDATE RECORDS
						SET fields = fields || $3::jsonb,
						    version = version + 1
						WHERE type=$1 AND id=$2 AND version=$4;`
	QueryRecords = `SELECT id, fields, version, created_at FROM RECORDS WHERE type=$1 AND fields @> $2::jsonb`
)

// имена полей сортировки, допустимые к подстановке в SQL
var orderFieldPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

type RecordDatabase struct {
	DB *Database
}

// Создание хранилища
func NewRecordsStorage(db *Database) records.Store {
	return &RecordDatabase{DB: db}
}

func (s *RecordDatabase) Get(ctx context.Context, recordType string, id string) (*records.Record, error) {
	var (
		rawFields []byte
		version   int64
		createdAt time.Time
	)

	err := s.DB.Pool.QueryRow(ctx, GetRecord, recordType, id).Scan(&rawFields, &version, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, records.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	fields, err := unmarshalFields(rawFields)
	if err != nil {
		return nil, err
	}
	return &records.Record{
		ID:        id,
		Type:      recordType,
		Fields:    fields,
		Version:   version,
		CreatedAt: createdAt,
	}, nil
}

func (s *RecordDatabase) Query(ctx context.Context, recordType string, filters records.Filters, order records.Order, limit int) ([]records.Record, error) {
	rawFilters, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filters: %w", err)
	}
	if filters == nil {
		rawFilters = []byte(`{}`)
	}

	query, err := buildQuery(order, limit)
	if err != nil {
		return nil, err
	}

	var found []records.Record
	rows, err := s.DB.Pool.Query(ctx, query, recordType, rawFilters)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id        string
			rawFields []byte
			version   int64
			createdAt time.Time
		)
		err := rows.Scan(&id, &rawFields, &version, &createdAt)
		if err != nil {
			return found, fmt.Errorf("failed scan record data: %w", err)
		}
		fields, err := unmarshalFields(rawFields)
		if err != nil {
			return found, err
		}
		found = append(found, records.Record{
			ID:        id,
			Type:      recordType,
			Fields:    fields,
			Version:   version,
			CreatedAt: createdAt,
		})
	}
	// обрыв соединения посреди выборки не должен выглядеть как короткий результат
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return found, nil
}

func (s *RecordDatabase) Create(ctx context.Context, recordType string, fields records.Fields) (string, error) {
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}

	id := uuid.New().String()
	err = s.DB.Pool.QueryRow(ctx, InsertRecord, id, recordType, rawFields).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	return id, nil
}

// Update - частичное обновление полей записи без контроля версии
func (s *RecordDatabase) Update(ctx context.Context, recordType string, id string, fields records.Fields) error {
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	tag, err := s.DB.Pool.Exec(ctx, UpdateRecord, recordType, id, rawFields)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrRecordNotFound
	}
	return nil
}

// UpdateIf - частичное обновление полей записи с проверкой версии.
// Версия проверяется и инкрементируется одним UPDATE, гонка чтения-записи
// разрешается на стороне базы.
func (s *RecordDatabase) UpdateIf(ctx context.Context, recordType string, id string, fields records.Fields, version int64) error {
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	tag, err := s.DB.Pool.Exec(ctx, UpdateRecordIf, recordType, id, rawFields, version)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// строка не изменилась: либо записи нет, либо версия устарела
		if _, err := s.Get(ctx, recordType, id); err != nil {
			return err
		}
		return records.ErrVersionConflict
	}
	return nil
}

// buildQuery - сборка текста выборки с сортировкой и ограничением
func buildQuery(order records.Order, limit int) (string, error) {
	query := QueryRecords
	if order.Field != "" {
		if !orderFieldPattern.MatchString(order.Field) {
			return "", fmt.Errorf("invalid order field %q", order.Field)
		}
		direction := "ASC"
		if order.Desc {
			direction = "DESC"
		}
		if order.Field == "created_at" {
			query += fmt.Sprintf(" ORDER BY created_at %s", direction)
		} else {
			// jsonb-сравнение упорядочивает числа численно, строки лексикографически
			query += fmt.Sprintf(" ORDER BY fields->'%s' %s", order.Field, direction)
		}
	} else {
		query += " ORDER BY created_at ASC"
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query + ";", nil
}

func unmarshalFields(raw []byte) (records.Fields, error) {
	fields := make(records.Fields)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record fields: %w", err)
	}
	return fields, nil
}
