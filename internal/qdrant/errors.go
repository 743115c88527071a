package qdrant

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

var errClosed = apperrors.New(apperrors.CodeUnavailable, "qdrant client is closed")

// classify maps gRPC failures onto application error codes.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.TimeoutError(op, err)
	}

	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return apperrors.TimeoutError(op, err)
	case codes.Unavailable:
		return apperrors.Wrap(apperrors.CodeUnavailable, op+" failed: qdrant unavailable", err)
	case codes.NotFound:
		return apperrors.Wrap(apperrors.CodeNotFound, op+" failed", err)
	case codes.InvalidArgument:
		return apperrors.Wrap(apperrors.CodeValidation, op+" rejected", err)
	case codes.Canceled:
		return err
	default:
		return apperrors.Wrap(apperrors.CodeAdapter, op+" failed", err)
	}
}
