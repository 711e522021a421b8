package handlers

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestStruct struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type decimalStruct struct {
	Amount decimal.Decimal  `json:"amount" validate:"dgt=0,money"`
	Limit  *decimal.Decimal `json:"limit" validate:"omitempty,dgte=0,money"`
}

func newBindingContext(body string) *gin.Context {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	return c
}

func TestBindNestedOrFlat(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		key         string
		body        string
		expected    TestStruct
		expectError bool
	}{
		{
			name:     "Nested Structure",
			key:      "data",
			body:     `{"data": {"name": "Alice", "age": 30}}`,
			expected: TestStruct{Name: "Alice", Age: 30},
		},
		{
			name:     "Flat Structure",
			key:      "data",
			body:     `{"name": "Bob", "age": 25}`,
			expected: TestStruct{Name: "Bob", Age: 25},
		},
		{
			name:     "Nested Structure with Missing Key Fallback",
			key:      "data",
			body:     `{"other": "value", "name": "Charlie", "age": 40}`,
			expected: TestStruct{Name: "Charlie", Age: 40},
		},
		{
			name:     "Nested Structure with Different Key",
			key:      "debt",
			body:     `{"debt": {"name": "David", "age": 35}}`,
			expected: TestStruct{Name: "David", Age: 35},
		},
		{
			name:        "Invalid JSON",
			key:         "data",
			body:        `{"name": "Eve", "age": "invalid"}`,
			expectError: true,
		},
		{
			name:        "Empty Body",
			key:         "data",
			body:        ``,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newBindingContext(tt.body)

			var result TestStruct
			err := BindNestedOrFlat(c, tt.key, &result)

			if tt.expectError {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBindNestedOrFlat_DecimalRules(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"positive amount", `{"amount": "10.50"}`, ""},
		{"numeric amount", `{"payment": {"amount": 3}}`, ""},
		{"zero amount", `{"amount": 0}`, "amount"},
		{"missing amount", `{}`, "amount"},
		{"negative limit", `{"amount": 1, "limit": "-1"}`, "limit"},
		{"zero limit", `{"amount": 1, "limit": 0}`, ""},
		{"two decimal amount", `{"amount": "33.33"}`, ""},
		{"largest amount", `{"amount": "9999999999999.99"}`, ""},
		{"sub-cent amount", `{"amount": "0.004"}`, "amount"},
		{"three decimal amount", `{"amount": 100.001}`, "amount"},
		{"amount over column size", `{"amount": "10000000000000"}`, "amount"},
		{"three decimal limit", `{"amount": 1, "limit": "2.125"}`, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req decimalStruct
			err := BindNestedOrFlat(newBindingContext(tt.body), "payment", &req)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var verr *apperrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
