package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/seckill-cache/internal/core/cache"
	"github.com/rl1809/seckill-cache/internal/core/domain"
)

// errorInfo maps a service error onto both transports. Business rejections
// carry their own message; anything else is reported without internals.
type errorInfo struct {
	httpStatus int
	code       codes.Code
	message    string
	rejection  bool
}

func classify(err error) errorInfo {
	switch {
	case errors.Is(err, domain.ErrShopNotFound),
		errors.Is(err, domain.ErrShopTypeNotFound),
		errors.Is(err, domain.ErrVoucherNotFound):
		return errorInfo{http.StatusNotFound, codes.NotFound, err.Error(), domain.IsRejection(err)}
	case errors.Is(err, domain.ErrShopIDRequired):
		return errorInfo{http.StatusBadRequest, codes.InvalidArgument, err.Error(), false}
	case errors.Is(err, domain.ErrSeckillNotStarted),
		errors.Is(err, domain.ErrSeckillEnded):
		return errorInfo{http.StatusForbidden, codes.FailedPrecondition, err.Error(), true}
	case errors.Is(err, domain.ErrSoldOut):
		return errorInfo{http.StatusGone, codes.ResourceExhausted, "sold out", true}
	case errors.Is(err, domain.ErrDuplicateOrder):
		return errorInfo{http.StatusConflict, codes.AlreadyExists, "duplicate request", true}
	case errors.Is(err, cache.ErrLockTimeout):
		return errorInfo{http.StatusServiceUnavailable, codes.Unavailable, "busy, retry later", false}
	case errors.Is(err, cache.ErrStoreUnavailable):
		return errorInfo{http.StatusServiceUnavailable, codes.Unavailable, "service unavailable", false}
	case errors.Is(err, context.DeadlineExceeded):
		return errorInfo{http.StatusGatewayTimeout, codes.DeadlineExceeded, "timeout", false}
	case errors.Is(err, context.Canceled):
		return errorInfo{499, codes.Canceled, "canceled", false}
	default:
		return errorInfo{http.StatusInternalServerError, codes.Internal, "internal error", false}
	}
}
