package generic_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministerio/gestao-engine/generic"
)

// =============================================================================
// TIME OF DAY
// =============================================================================

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 1440, false},
		{"24:01", 0, true},
		{"12:60", 0, true},
		{"9:30", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := generic.ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, int(got))
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestTimeOfDay_JSON(t *testing.T) {
	var rule struct {
		Start generic.TimeOfDay `json:"start"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"14:15"}`), &rule))
	assert.Equal(t, generic.MustTimeOfDay("14:15"), rule.Start)

	out, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"14:15"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"start":900}`), &rule))
	assert.Error(t, json.Unmarshal([]byte(`{"start":"25:00"}`), &rule))
}

func TestTimeOfDay_OnKeepsWallClock(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	day := time.Date(2025, time.June, 2, 0, 0, 0, 0, saoPaulo)

	got := generic.MustTimeOfDay("09:00").On(day)

	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, saoPaulo, got.Location())
}

// =============================================================================
// DATES AND PERIODS
// =============================================================================

func TestOverlaps_HalfOpen(t *testing.T) {
	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	h := func(n int) time.Time { return base.Add(time.Duration(n) * time.Hour) }

	assert.True(t, generic.Overlaps(h(0), h(2), h(1), h(3)))
	assert.False(t, generic.Overlaps(h(0), h(1), h(1), h(2)), "touching intervals do not overlap")
	assert.True(t, generic.Overlaps(h(0), h(3), h(1), h(2)), "containment")
}

func TestMonthPeriod(t *testing.T) {
	p, err := generic.MonthPeriod(2024, time.February, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), p.End)
	assert.Len(t, p.Days(), 29)
	assert.True(t, p.Contains(p.Start))
	assert.False(t, p.Contains(p.End))

	_, err = generic.MonthPeriod(2024, 0, time.UTC)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// MONEY
// =============================================================================

func TestFormatCurrency(t *testing.T) {
	tests := map[string]string{
		"0":          "R$ 0,00",
		"5.5":        "R$ 5,50",
		"1234.56":    "R$ 1.234,56",
		"1000000":    "R$ 1.000.000,00",
		"-320":       "-R$ 320,00",
		"0.005":      "R$ 0,01",
		"-0.001":     "R$ 0,00",
		"123456.789": "R$ 123.456,79",
	}
	for in, want := range tests {
		assert.Equal(t, want, generic.FormatCurrency(decimal.RequireFromString(in)), in)
	}
}

func TestSignedAmount(t *testing.T) {
	amount := decimal.RequireFromString("12.5")
	assert.True(t, generic.SignedAmount(amount, true).Equal(amount))
	assert.True(t, generic.SignedAmount(amount, false).Equal(amount.Neg()))
}

// =============================================================================
// CODES
// =============================================================================

func TestNewBookingCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := generic.NewBookingCode()
		assert.True(t, generic.IsBookingCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
	assert.False(t, generic.IsBookingCode("ASS-12345-ABCDEF"))
}

func TestNewReference(t *testing.T) {
	at := time.Date(2025, time.March, 9, 8, 0, 0, 0, time.UTC)

	ref := generic.NewReference(generic.ReferencePrefixTransfer, at)

	assert.True(t, strings.HasPrefix(ref, "TRANSF-20250309-"), ref)
	assert.Len(t, ref, len("TRANSF-20250309-")+8)
}

// =============================================================================
// ERRORS AND VALIDATION
// =============================================================================

func TestErrorTaxonomy(t *testing.T) {
	ibe := &generic.InsufficientBalanceError{
		DepartmentID: "d1",
		Available:    decimal.RequireFromString("30"),
		Requested:    decimal.RequireFromString("70"),
	}
	wrapped := fmt.Errorf("approve: %w", ibe)

	assert.ErrorIs(t, wrapped, generic.ErrInsufficientBalance)
	assert.True(t, ibe.Shortfall().Equal(decimal.RequireFromString("40")))
	assert.True(t, generic.IsClientError(wrapped))
	assert.False(t, generic.IsRetryable(wrapped))
	assert.True(t, generic.IsRetryable(fmt.Errorf("write: %w", generic.ErrConcurrentModification)))
	assert.True(t, generic.IsNotFound(&generic.NotFoundError{Kind: "member", ID: "m1"}))
	assert.ErrorIs(t, &generic.SlotUnavailableError{Reason: "conflict"}, generic.ErrSlotUnavailable)
	assert.ErrorIs(t, &generic.InvalidStateError{Kind: "transaction"}, generic.ErrInvalidState)
	assert.ErrorIs(t, &generic.InactiveDepartmentError{DepartmentID: "d1"}, generic.ErrInactiveDepartment)
}

func TestValidationError_MergeAndOrNil(t *testing.T) {
	verr := &generic.ValidationError{}
	assert.NoError(t, verr.OrNil())

	verr.Merge(errors.New("not a validation error"))
	verr.Merge(nil)
	assert.NoError(t, verr.OrNil())

	verr.Merge(generic.NewValidationError("from", "datetime", "bad"))
	verr.Add("to", "required", "is required")
	err := verr.OrNil()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from: bad")
	assert.Contains(t, err.Error(), "to: is required")
}

func TestValidator_UsesJSONNamesAndDecimalValues(t *testing.T) {
	type input struct {
		Name   string          `json:"full_name" validate:"required"`
		Amount decimal.Decimal `json:"amount" validate:"gt=0"`
		Email  string          `json:"email" validate:"omitempty,email"`
	}
	v := generic.NewValidator()

	assert.NoError(t, v.Struct(input{Name: "Ana", Amount: decimal.RequireFromString("0.01")}))

	err := v.Struct(input{Amount: decimal.RequireFromString("-1"), Email: "nope"})
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	got := map[string]string{}
	for _, f := range verr.Fields {
		got[f.Field] = f.Rule
	}
	assert.Equal(t, map[string]string{"full_name": "required", "amount": "gt", "email": "email"}, got)
}

func TestValidator_DecimalSignIsExact(t *testing.T) {
	type input struct {
		Amount  decimal.Decimal `json:"amount" validate:"gt=0"`
		Opening decimal.Decimal `json:"opening" validate:"gte=0"`
	}
	v := generic.NewValidator()

	// Below float64 range but still positive.
	tiny := decimal.RequireFromString("1e-400")
	assert.NoError(t, v.Struct(input{Amount: tiny, Opening: decimal.Zero}))

	err := v.Struct(input{Amount: decimal.Zero, Opening: tiny.Neg()})
	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	got := map[string]string{}
	for _, f := range verr.Fields {
		got[f.Field] = f.Rule
	}
	assert.Equal(t, map[string]string{"amount": "gt", "opening": "gte"}, got)
}
