package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keeperlink/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mapError translates a transport status returned by the engine into the
// common error taxonomy. Errors that carry no status pass through unchanged.
func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !errors.Is(err, common.ErrCancelled) {
		return fmt.Errorf("%w: %w", common.ErrCancelled, err)
	}

	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) {
		return err
	}
	switch se.GRPCStatus().Code() {
	case codes.Unauthenticated, codes.PermissionDenied, codes.NotFound,
		codes.ResourceExhausted, codes.InvalidArgument, codes.DataLoss:
		return fmt.Errorf("%w: %w", common.ErrProtocol, err)
	case codes.Canceled:
		return fmt.Errorf("%w: %w", common.ErrCancelled, err)
	default:
		return err
	}
}
