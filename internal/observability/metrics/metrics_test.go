package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "gone"),
		attribute.String("org_id", "123"),
		attribute.String("email", "bob@example.com"),
		attribute.String("reason", "missing_env"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
	if attrs[0].Key != "reason" && attrs[1].Key != "reason" {
		t.Fatalf("expected reason to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordInviteCreated(context.Background(), "ADMIN")
	m.RecordInviteRedemption(context.Background(), "accepted")
	m.RecordInviteEmail(context.Background(), "sent")
	m.RecordMembershipChange(context.Background(), "delete")
	m.RecordRateLimitDenied(context.Background(), "accept")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotNil(t, m)
	m.RecordInviteCreated(context.Background(), "TEAM")
}
