package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/denmor86/loyalty-engine/internal/models"
	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/denmor86/loyalty-engine/internal/records/mocks"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
)

func TestProgramConfigResolver_ResolveConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockStore := mocks.NewMockStore(ctrl)

	resolver := NewProgramConfigResolver(mockStore)

	filters := records.Filters{"tier_id": "t1", "category_id": "c1", "currency_id": "usd"}
	order := records.Order{Field: "created_at", Desc: true}

	testCases := []struct {
		Name           string
		SetupMocks     func()
		ExpectedError  error
		ExpectedConfig *models.ProgramConfig
	}{
		{
			Name: "Success. No configuration is a soft miss #1",
			SetupMocks: func() {
				mockStore.EXPECT().Query(gomock.Any(), models.RecordProgramConfig, filters, order, 1).Return(nil, nil)
			},
			ExpectedConfig: nil,
		},
		{
			Name: "Error. Store failure #2",
			SetupMocks: func() {
				mockStore.EXPECT().Query(gomock.Any(), models.RecordProgramConfig, filters, order, 1).Return(nil, errors.New("failed to query records"))
			},
			ExpectedError: errors.New("failed to query program configurations: failed to query records"),
		},
		{
			Name: "Success. Latest matching configuration #3",
			SetupMocks: func() {
				mockStore.EXPECT().Query(gomock.Any(), models.RecordProgramConfig, filters, order, 1).Return([]records.Record{
					{
						ID:   "cfg1",
						Type: models.RecordProgramConfig,
						Fields: records.Fields{
							"tier_id": "t1", "category_id": "c1", "currency_id": "usd",
							"min_spend_amount": 100, "points_per_unit": "2",
						},
					},
				}, nil)
			},
			ExpectedConfig: &models.ProgramConfig{
				ID:             "cfg1",
				TierID:         "t1",
				CategoryID:     "c1",
				CurrencyID:     "usd",
				MinSpendAmount: 100,
				PointsPerUnit:  decimal.NewFromInt(2),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			tc.SetupMocks()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			config, err := resolver.ResolveConfig(ctx, "t1", "c1", "usd")

			if err != nil && tc.ExpectedError == nil {
				t.Errorf("Expected no error, got: '%v'", err)
			} else if err == nil && tc.ExpectedError != nil {
				t.Errorf("Expected error, got none")
			} else if err != nil && err.Error() != tc.ExpectedError.Error() {
				t.Errorf("Expected error '%v', got: '%v'", tc.ExpectedError, err)
			}
			diff := cmp.Diff(tc.ExpectedConfig, config)
			if len(diff) != 0 {
				t.Errorf("expected config mismatch:\n %s", diff)
			}
		})
	}
}

func TestCalculatePoints(t *testing.T) {
	testCases := []struct {
		Name           string
		Price          decimal.Decimal
		Config         models.ProgramConfig
		ExpectedPoints string
		ExpectedError  error
	}{
		{
			Name:           "Success. Price 500, minSpend 100, rate 2 #1",
			Price:          decimal.NewFromInt(500),
			Config:         models.ProgramConfig{MinSpendAmount: 100, PointsPerUnit: decimal.NewFromInt(2)},
			ExpectedPoints: "10",
		},
		{
			Name:           "Success. Fractional rate kept exactly #2",
			Price:          decimal.NewFromInt(250),
			Config:         models.ProgramConfig{MinSpendAmount: 100, PointsPerUnit: decimal.RequireFromString("0.5")},
			ExpectedPoints: "1.25",
		},
		{
			Name:          "Error. Zero min spend is invalid configuration #3",
			Price:         decimal.NewFromInt(500),
			Config:        models.ProgramConfig{MinSpendAmount: 0, PointsPerUnit: decimal.NewFromInt(2)},
			ExpectedError: ErrInvalidProgramConfig,
		},
		{
			Name:          "Error. Negative min spend is invalid configuration #4",
			Price:         decimal.NewFromInt(500),
			Config:        models.ProgramConfig{MinSpendAmount: -10, PointsPerUnit: decimal.NewFromInt(2)},
			ExpectedError: ErrInvalidProgramConfig,
		},
		{
			Name:          "Error. Non-positive price rejected #5",
			Price:         decimal.Zero,
			Config:        models.ProgramConfig{MinSpendAmount: 100, PointsPerUnit: decimal.NewFromInt(2)},
			ExpectedError: ErrNonPositivePrice,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			points, err := CalculatePoints(tc.Price, tc.Config)

			if tc.ExpectedError != nil {
				if !errors.Is(err, tc.ExpectedError) {
					t.Errorf("Expected error '%v', got: '%v'", tc.ExpectedError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: '%v'", err)
			}
			expected := decimal.RequireFromString(tc.ExpectedPoints)
			if !points.Equal(expected) {
				t.Errorf("Expected points '%s', got: '%s'", expected, points)
			}
		})
	}
}
