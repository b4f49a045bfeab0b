package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInvalidPayload = "invalid_payload"
	codeInternal       = "internal_error"
	codeTooLarge       = "payload_too_large"
)

type errorMapping struct {
	status  int
	message string
}

var errorMappings = map[booking.Kind]errorMapping{
	booking.KindInvalidParameter:    {http.StatusBadRequest, "request is invalid"},
	booking.KindPriceMismatch:       {http.StatusBadRequest, "estimated price does not match the current price"},
	booking.KindGatewayRejected:     {http.StatusBadRequest, "payment gateway rejected the request"},
	booking.KindInvalidSignature:    {http.StatusBadRequest, "invalid webhook signature"},
	booking.KindBookingNotFound:     {http.StatusNotFound, "booking not found"},
	booking.KindTransactionNotFound: {http.StatusNotFound, "payment transaction not found"},
	booking.KindBookingNotPending:   {http.StatusConflict, "booking is no longer pending"},
	booking.KindBookingNotConfirmed: {http.StatusConflict, "booking is not confirmed"},
	booking.KindAmountMismatch:      {http.StatusConflict, "paid amount does not match the booking"},
	booking.KindGatewayUnavailable:  {http.StatusServiceUnavailable, "payment gateway unavailable, retry later"},
}

// respondError writes the mapped status and a client-safe body. Internal
// errors are logged in full and answered with a generic message.
func (handler *Handler) respondError(ctx *gin.Context, err error) {
	kind := booking.KindOf(err)
	mapping, known := errorMappings[kind]
	if !known {
		handler.logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err),
		)
		ctx.JSON(http.StatusInternalServerError, errorResponse(codeInternal, "internal error", false))
		return
	}
	message := mapping.message
	switch kind {
	case booking.KindInvalidParameter, booking.KindPriceMismatch:
		message = err.Error()
	case booking.KindGatewayRejected:
		if public := booking.PublicMessage(err); public != "" {
			message = public
		}
	}
	if kind == booking.KindGatewayUnavailable {
		handler.logger.Warn("payment gateway unavailable", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(mapping.status, errorResponse(string(kind), message, booking.Retryable(err)))
}

func errorResponse(code string, message string, retryable bool) gin.H {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if retryable {
		body["retryable"] = true
	}
	return gin.H{"error": body}
}
