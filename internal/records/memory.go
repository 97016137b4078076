package records

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory - хранилище записей в памяти. Используется в тестах и при запуске
// без внешнего хранилища. Версии записей обслуживают оптимистичную блокировку.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string]*Record
}

// Создание хранилища
func NewMemory() *Memory {
	return &Memory{records: make(map[string]map[string]*Record)}
}

func (s *Memory) Get(_ context.Context, recordType string, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordType][id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

func (s *Memory) Query(_ context.Context, recordType string, filters Filters, order Order, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Record
	for _, record := range s.records[recordType] {
		if matchFilters(record.Fields, filters) {
			matched = append(matched, *cloneRecord(record))
		}
	}

	sortRecords(matched, order)

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Memory) Create(_ context.Context, recordType string, fields Fields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &Record{
		ID:        uuid.New().String(),
		Type:      recordType,
		Fields:    cloneFields(fields),
		Version:   1,
		CreatedAt: time.Now(),
	}
	if s.records[recordType] == nil {
		s.records[recordType] = make(map[string]*Record)
	}
	s.records[recordType][record.ID] = record
	return record.ID, nil
}

// Update - частичное обновление полей записи без контроля версии
func (s *Memory) Update(_ context.Context, recordType string, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordType][id]
	if !ok {
		return ErrRecordNotFound
	}
	mergeFields(record, fields)
	return nil
}

// UpdateIf - частичное обновление полей записи с проверкой версии
func (s *Memory) UpdateIf(_ context.Context, recordType string, id string, fields Fields, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordType][id]
	if !ok {
		return ErrRecordNotFound
	}
	if record.Version != version {
		return ErrVersionConflict
	}
	mergeFields(record, fields)
	return nil
}

func mergeFields(record *Record, fields Fields) {
	for key, value := range fields {
		record.Fields[key] = value
	}
	record.Version++
}

func cloneRecord(record *Record) *Record {
	clone := *record
	clone.Fields = cloneFields(record.Fields)
	return &clone
}

func cloneFields(fields Fields) Fields {
	clone := make(Fields, len(fields))
	for key, value := range fields {
		clone[key] = value
	}
	return clone
}

func matchFilters(fields Fields, filters Filters) bool {
	for key, expected := range filters {
		if !equalValues(fields[key], expected) {
			return false
		}
	}
	return true
}

// equalValues - сравнение значений полей с учётом десятичных типов
func equalValues(actual any, expected any) bool {
	actualDecimal, actualOk := actual.(decimal.Decimal)
	expectedDecimal, expectedOk := expected.(decimal.Decimal)
	if actualOk && expectedOk {
		return actualDecimal.Equal(expectedDecimal)
	}
	return reflect.DeepEqual(actual, expected)
}

func sortRecords(items []Record, order Order) {
	if order.Field == "" {
		// стабильный порядок по времени создания, чтобы выборки были детерминированы
		sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
		return
	}
	sort.Slice(items, func(i, j int) bool {
		// убывание — строгое сравнение с обратными аргументами,
		// отрицание нестрого упорядочивает равные ключи
		if order.Desc {
			return lessByField(items[j], items[i], order.Field)
		}
		return lessByField(items[i], items[j], order.Field)
	})
}

func lessByField(a Record, b Record, field string) bool {
	if field == "created_at" {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	left, leftErr := a.Fields.ParseDecimal(field)
	right, rightErr := b.Fields.ParseDecimal(field)
	if leftErr == nil && rightErr == nil {
		return left.LessThan(right)
	}
	return a.Fields.String(field) < b.Fields.String(field)
}
