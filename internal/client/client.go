package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/denmor86/loyalty-engine/internal/records"
)

var ErrServiceUnavailable = errors.New("host record API unavailable")

type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded"
}

func NewRateLimitError(headers http.Header) *RateLimitError {
	return &RateLimitError{
		RetryAfter: ParseRetryAfter(headers),
	}
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// recordPayload - представление записи в API хост-платформы
type recordPayload struct {
	ID        string         `json:"id"`
	Fields    records.Fields `json:"fields"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
}

// queryPayload - тело запроса выборки записей
type queryPayload struct {
	Filters records.Filters `json:"filters,omitempty"`
	OrderBy string          `json:"order_by,omitempty"`
	Desc    bool            `json:"desc,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// RecordClient - доступ к записям через REST API хост-платформы.
// Вызовы ограничены таймаутом и частотным лимитером: при ответе 429
// лимитер блокируется на интервал из Retry-After.
type RecordClient struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient HTTPClient
	limiter    *RateLimiter
}

// Создание клиента
func NewRecordClient(baseURL string, token string, timeout time.Duration, httpClient HTTPClient) *RecordClient {
	return &RecordClient{
		baseURL:    baseURL,
		token:      token,
		timeout:    timeout,
		httpClient: httpClient,
		limiter:    NewRateLimiter(),
	}
}

func (c *RecordClient) Get(ctx context.Context, recordType string, id string) (*records.Record, error) {
	var payload recordPayload
	err := c.call(ctx, http.MethodGet, "/api/records/"+recordType+"/"+id, nil, nil, &payload)
	if err != nil {
		return nil, err
	}
	return toRecord(recordType, payload), nil
}

func (c *RecordClient) Query(ctx context.Context, recordType string, filters records.Filters, order records.Order, limit int) ([]records.Record, error) {
	request := queryPayload{Filters: filters, OrderBy: order.Field, Desc: order.Desc, Limit: limit}
	var payload struct {
		Records []recordPayload `json:"records"`
	}
	err := c.call(ctx, http.MethodPost, "/api/records/"+recordType+"/query", request, nil, &payload)
	if err != nil {
		return nil, err
	}

	found := make([]records.Record, 0, len(payload.Records))
	for _, item := range payload.Records {
		found = append(found, *toRecord(recordType, item))
	}
	return found, nil
}

func (c *RecordClient) Create(ctx context.Context, recordType string, fields records.Fields) (string, error) {
	var payload struct {
		ID string `json:"id"`
	}
	err := c.call(ctx, http.MethodPost, "/api/records/"+recordType, fields, nil, &payload)
	if err != nil {
		return "", err
	}
	return payload.ID, nil
}

func (c *RecordClient) Update(ctx context.Context, recordType string, id string, fields records.Fields) error {
	return c.call(ctx, http.MethodPatch, "/api/records/"+recordType+"/"+id, fields, nil, nil)
}

// UpdateIf - обновление с проверкой версии через заголовок If-Match,
// ответ 409 транслируется в records.ErrVersionConflict
func (c *RecordClient) UpdateIf(ctx context.Context, recordType string, id string, fields records.Fields, version int64) error {
	headers := http.Header{"If-Match": []string{strconv.FormatInt(version, 10)}}
	return c.call(ctx, http.MethodPatch, "/api/records/"+recordType+"/"+id, fields, headers, nil)
}

// call - общий цикл вызова API: лимитер, таймаут, разбор статуса и тела
func (c *RecordClient) call(ctx context.Context, method string, path string, body any, headers http.Header, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrServiceUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if err := c.handleStatus(resp); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *RecordClient) handleStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return records.ErrRecordNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return records.ErrVersionConflict
	case http.StatusTooManyRequests:
		rateLimitErr := NewRateLimitError(resp.Header)
		logger.Warn("Too many requests to host record API, blocking for", rateLimitErr.RetryAfter)
		c.limiter.BlockFor(rateLimitErr.RetryAfter)
		return rateLimitErr
	default:
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}
}

func toRecord(recordType string, payload recordPayload) *records.Record {
	return &records.Record{
		ID:        payload.ID,
		Type:      recordType,
		Fields:    payload.Fields,
		Version:   payload.Version,
		CreatedAt: payload.CreatedAt,
	}
}
