package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

func TestStatusCounts_Percentages(t *testing.T) {
	tests := []struct {
		name   string
		counts model.StatusCounts
		want   model.StatusPercentages
	}{
		{
			name:   "exact shares",
			counts: model.StatusCounts{Pass: 80, Fail: 15, Error: 5},
			want:   model.StatusPercentages{Pass: 80, Fail: 15, Error: 5},
		},
		{
			name:   "thirds give the spare tenth to the first status",
			counts: model.StatusCounts{Pass: 1, Fail: 1, Blocked: 1},
			want:   model.StatusPercentages{Pass: 33.4, Fail: 33.3, Blocked: 33.3},
		},
		{
			name:   "largest remainders are rounded up",
			counts: model.StatusCounts{Pass: 1, Fail: 1, Error: 3, Blocked: 8, Skip: 1},
			want:   model.StatusPercentages{Pass: 7.2, Fail: 7.2, Error: 21.4, Blocked: 57.1, Skip: 7.1},
		},
		{
			name:   "zero total",
			counts: model.StatusCounts{},
			want:   model.StatusPercentages{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.counts.Percentages()

			assert.Equal(t, tt.want, got)
			if tt.counts.Total() > 0 {
				assert.InDelta(t, 100.0, got.Sum(), 1e-9)
			}
		})
	}
}

func TestStatusCounts_PercentagesAlwaysSumTo100(t *testing.T) {
	for pass := 0; pass <= 12; pass++ {
		for fail := 0; fail <= 12; fail++ {
			for blocked := 0; blocked <= 7; blocked++ {
				c := model.StatusCounts{Pass: pass, Fail: fail, Error: 1, Blocked: blocked, Skip: 2}
				assert.InDelta(t, 100.0, c.Percentages().Sum(), 1e-9, "counts %+v", c)
			}
		}
	}
}
