package qdrant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.Host != DefaultHost {
		t.Errorf("expected host %s, got %s", DefaultHost, cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, cfg.Timeout)
	}
	if cfg.DenseVector != "dense" || cfg.MultiVector != "colbert" {
		t.Errorf("unexpected vector names %q/%q", cfg.DenseVector, cfg.MultiVector)
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url      string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"http://localhost:6333", "localhost", 6334, false},
		{"http://qdrant.internal:7000", "qdrant.internal", 7001, false},
		{"http://qdrant", "qdrant", 6334, false},
		{"http://host:abc", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			host, port, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("ParseURL() = %s:%d, want %s:%d", host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestScoredPointToResult(t *testing.T) {
	tests := []struct {
		name  string
		point *qdrant.ScoredPoint
		want  string
	}{
		{
			name: "doc_id payload",
			point: &qdrant.ScoredPoint{
				Id:      qdrant.NewIDNum(1),
				Score:   0.9,
				Payload: map[string]*qdrant.Value{"doc_id": qdrant.NewValueString("7066866")},
			},
			want: "7066866",
		},
		{
			name: "integer id payload",
			point: &qdrant.ScoredPoint{
				Id:      qdrant.NewIDNum(1),
				Payload: map[string]*qdrant.Value{"id": qdrant.NewValueInt(42)},
			},
			want: "42",
		},
		{
			name:  "numeric point id",
			point: &qdrant.ScoredPoint{Id: qdrant.NewIDNum(123)},
			want:  "123",
		},
		{
			name:  "uuid point id",
			point: &qdrant.ScoredPoint{Id: qdrant.NewIDUUID("5c56c793-69f3-4fbf-87e6-c4bf54c28c26")},
			want:  "5c56c793-69f3-4fbf-87e6-c4bf54c28c26",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoredPointToResult(tt.point).ID; got != tt.want {
				t.Errorf("ID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), apperrors.CodeTimeout},
		{"context deadline", context.DeadlineExceeded, apperrors.CodeTimeout},
		{"unavailable", status.Error(codes.Unavailable, "down"), apperrors.CodeUnavailable},
		{"not found", status.Error(codes.NotFound, "no collection"), apperrors.CodeNotFound},
		{"invalid", status.Error(codes.InvalidArgument, "bad vector"), apperrors.CodeValidation},
		{"other", errors.New("boom"), apperrors.CodeAdapter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperrors.CodeOf(classify(ctx, "op", tt.err)); got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestVectorNames(t *testing.T) {
	cfg := qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
		"dense":   {Size: 128, Distance: qdrant.Distance_Cosine},
		"colbert": {Size: 128, Distance: qdrant.Distance_Cosine},
	})

	names := vectorNames(cfg)
	if len(names) != 2 || names[0] != "colbert" || names[1] != "dense" {
		t.Errorf("vectorNames() = %v, want [colbert dense]", names)
	}
	if vectorNames(nil) != nil {
		t.Error("vectorNames(nil) should be nil")
	}
}

func TestLimitOr(t *testing.T) {
	if limitOr(0, 20) != 20 {
		t.Error("expected default for zero limit")
	}
	if limitOr(5, 20) != 5 {
		t.Error("expected explicit limit")
	}
}

func TestClient_Live(t *testing.T) {
	c, err := NewClient(ClientConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Skip("Qdrant client unavailable:", err)
	}
	defer c.Close()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Skip("Qdrant not available:", err)
	}

	if _, err := c.ListCollections(context.Background()); err != nil {
		t.Errorf("ListCollections() error = %v", err)
	}

	_, err = c.DenseSearch(context.Background(), "muvera_missing_collection", SearchRequest{DenseVector: []float32{1, 0}})
	if err == nil {
		t.Error("expected error searching a missing collection")
	}
}

func TestClient_Closed(t *testing.T) {
	c, err := NewClient(DefaultClientConfig())
	if err != nil {
		t.Skip("Qdrant client unavailable:", err)
	}
	_ = c.Close()
	_ = c.Close()

	_, err = c.DenseSearch(context.Background(), "any", SearchRequest{DenseVector: []float32{1}})
	if apperrors.CodeOf(err) != apperrors.CodeUnavailable {
		t.Errorf("expected unavailable after close, got %v", err)
	}
}
