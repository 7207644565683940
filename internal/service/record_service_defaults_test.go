package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/pkg/expression"
)

func TestApplyDefaults_Literal(t *testing.T) {
	s := &RecordService{defaults: expression.NewEngine()}
	schema := &domain.Schema{Fields: []domain.Field{
		{Name: "status", Default: "draft"},
	}}
	payload := domain.RecordData{}

	require.NoError(t, s.applyDefaults(schema, payload))
	assert.Equal(t, "draft", payload["status"])
}

func TestApplyDefaults_DoesNotOverridePresentValue(t *testing.T) {
	s := &RecordService{defaults: expression.NewEngine()}
	schema := &domain.Schema{Fields: []domain.Field{
		{Name: "status", Default: "draft"},
	}}
	payload := domain.RecordData{"status": "published"}

	require.NoError(t, s.applyDefaults(schema, payload))
	assert.Equal(t, "published", payload["status"])
}

func TestApplyDefaults_Expression(t *testing.T) {
	s := &RecordService{defaults: expression.NewEngine()}
	schema := &domain.Schema{Fields: []domain.Field{
		{Name: "displayName", Default: "=UPPER(name)"},
	}}
	payload := domain.RecordData{"name": "alice"}

	require.NoError(t, s.applyDefaults(schema, payload))
	assert.Equal(t, "ALICE", payload["displayName"])
}

func TestApplyDefaults_ExpressionError(t *testing.T) {
	s := &RecordService{defaults: expression.NewEngine()}
	schema := &domain.Schema{Fields: []domain.Field{
		{Name: "broken", Default: "=UNDEFINED_FN()"},
	}}
	payload := domain.RecordData{}

	err := s.applyDefaults(schema, payload)
	require.Error(t, err)
}
