//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderQuery struct {
	OrderID  string            `json:"order_id" description:"Order identifier"`
	Limit    *int              `json:"limit"`
	Tags     []string          `json:"tags,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	Internal string            `json:"-"`
	hidden   string
	Nested   struct {
		Amount float64 `json:"amount"`
		OK     bool
	} `json:"nested"`
}

func TestGenerateJSONSchema_Struct(t *testing.T) {
	s := GenerateJSONSchema(reflect.TypeOf(orderQuery{}))
	require.Equal(t, "object", s.Type)
	assert.ElementsMatch(t, []string{"order_id", "nested"}, s.Required)
	assert.NotContains(t, s.Properties, "Internal")
	assert.NotContains(t, s.Properties, "hidden")

	assert.Equal(t, "string", s.Properties["order_id"].Type)
	assert.Equal(t, "Order identifier", s.Properties["order_id"].Description)
	assert.Equal(t, "integer", s.Properties["limit"].Type)
	assert.Equal(t, "array", s.Properties["tags"].Type)
	assert.Equal(t, "string", s.Properties["tags"].Items.Type)
	assert.Equal(t, "object", s.Properties["extra"].Type)

	nested := s.Properties["nested"]
	assert.Equal(t, "number", nested.Properties["amount"].Type)
	assert.Equal(t, "boolean", nested.Properties["OK"].Type)
}

func TestGenerateJSONSchema_Scalars(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"string", reflect.TypeOf(""), "string"},
		{"uint", reflect.TypeOf(uint8(0)), "integer"},
		{"pointer", reflect.TypeOf(&orderQuery{}), "object"},
		{"nil", nil, "object"},
		{"func", reflect.TypeOf(func() {}), "object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateJSONSchema(tt.typ).Type)
		})
	}
}
