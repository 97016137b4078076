package records

//go:generate mockgen -source=records.go -destination=mocks/mock_store.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrVersionConflict = errors.New("record version conflict")
)

// Fields - набор полей записи. Значения примитивные (string, bool, число)
// либо decimal.Decimal, сериализация зависит от конкретного хранилища.
type Fields map[string]any

// Record - обобщённая запись учётной системы
type Record struct {
	ID        string
	Type      string
	Fields    Fields
	Version   int64
	CreatedAt time.Time
}

// Filters - фильтры выборки, сравнение значений на точное равенство
type Filters map[string]any

// Order - сортировка выборки. Пустое поле — порядок не задан.
// Поле "created_at" сортирует по времени создания записи.
type Order struct {
	Field string
	Desc  bool
}

// Store - интерфейс доступа к записям учётной системы.
// UpdateIf выполняет проверку версии записи (оптимистичная блокировка),
// при несовпадении возвращает ErrVersionConflict.
type Store interface {
	Get(ctx context.Context, recordType string, id string) (*Record, error)
	Query(ctx context.Context, recordType string, filters Filters, order Order, limit int) ([]Record, error)
	Create(ctx context.Context, recordType string, fields Fields) (string, error)
	Update(ctx context.Context, recordType string, id string, fields Fields) error
	UpdateIf(ctx context.Context, recordType string, id string, fields Fields, version int64) error
}

// String возвращает строковое значение поля, пустая строка — поле не задано
func (f Fields) String(key string) string {
	value, ok := f[key].(string)
	if !ok {
		return ""
	}
	return value
}

// Bool возвращает булево значение поля
func (f Fields) Bool(key string) bool {
	value, ok := f[key].(bool)
	if !ok {
		return false
	}
	return value
}

// Int возвращает целочисленное значение поля.
// JSON-хранилища отдают числа как float64, учитываем это при разборе.
func (f Fields) Int(key string) int {
	switch value := f[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		number, err := strconv.Atoi(value)
		if err != nil {
			return 0
		}
		return number
	}
	return 0
}

// Decimal возвращает десятичное значение поля, ноль — поле не задано или не разобрано
func (f Fields) Decimal(key string) decimal.Decimal {
	value, err := f.ParseDecimal(key)
	if err != nil {
		return decimal.Zero
	}
	return value
}

// ParseDecimal - разбор десятичного значения поля с контролем ошибки
func (f Fields) ParseDecimal(key string) (decimal.Decimal, error) {
	switch value := f[key].(type) {
	case decimal.Decimal:
		return value, nil
	case string:
		number, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse decimal field %q: %w", key, err)
		}
		return number, nil
	case float64:
		return decimal.NewFromFloat(value), nil
	case int:
		return decimal.NewFromInt(int64(value)), nil
	case int64:
		return decimal.NewFromInt(value), nil
	case nil:
		return decimal.Zero, nil
	}
	return decimal.Zero, fmt.Errorf("unsupported decimal field %q type %T", key, f[key])
}
