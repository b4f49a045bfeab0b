package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MarkoPoloResearchLab/bookingd/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingService creates and reads bookings.
type BookingService interface {
	Quote(serviceType booking.ServiceType, params booking.ServiceParams) (booking.Money, error)
	CreateBooking(ctx context.Context, request booking.CreateRequest) (booking.Booking, error)
	Booking(ctx context.Context, id booking.BookingID) (booking.Booking, error)
	Complete(ctx context.Context, id booking.BookingID) (booking.Booking, error)
}

// PaymentReconciler settles bookings against the payment gateway.
type PaymentReconciler interface {
	Verify(ctx context.Context, reference booking.Reference) (booking.Booking, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (booking.Booking, error)
	Cancel(ctx context.Context, id booking.BookingID, reason string) (booking.Booking, error)
}

// Handler serves the booking routes.
type Handler struct {
	bookings        BookingService
	payments        PaymentReconciler
	logger          *zap.Logger
	cfg             Config
	signatureHeader string
}

// NewHandler validates cfg and wires the handler.
func NewHandler(cfg Config, bookings BookingService, payments PaymentReconciler, signatureHeader string, logger *zap.Logger) (*Handler, error) {
	if bookings == nil || payments == nil {
		return nil, fmt.Errorf("%w: http handler dependencies are nil", booking.ErrInvalidServiceConfig)
	}
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: webhook signature header is required", booking.ErrInvalidServiceConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrInvalidServiceConfig, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{bookings: bookings, payments: payments, logger: logger, cfg: cfg, signatureHeader: signatureHeader}, nil
}

func (handler *Handler) handleCatalog(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, newCatalogResponse(booking.Catalog()))
}

func (handler *Handler) handleQuote(ctx *gin.Context) {
	var request quoteRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body", false))
		return
	}
	serviceType, err := booking.ParseServiceType(request.ServiceType)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	params, err := booking.DecodeServiceParams(serviceType, request.ServiceParams)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	price, err := handler.bookings.Quote(serviceType, params)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, quoteResponse{
		ServiceType:     serviceType.String(),
		ServiceCategory: params.Category(),
		Price:           newMoneyPayload(price),
	})
}

func (handler *Handler) handleCreateBooking(ctx *gin.Context) {
	var request createBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body", false))
		return
	}
	createRequest, err := request.toDomain(handler.cfg.Currency)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	created, err := handler.bookings.CreateBooking(requestCtx, createRequest)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, createBookingResponse{
		BookingID:        created.ID.String(),
		PaymentReference: created.Payment.Reference.String(),
		AuthorizationURL: created.Payment.AuthorizationURL,
		AccessCode:       created.Payment.AccessCode,
		Price:            newMoneyPayload(created.Price),
		Booking:          newBookingPayload(created),
	})
}

func (handler *Handler) handleGetBooking(ctx *gin.Context) {
	id, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	found, err := handler.bookings.Booking(ctx.Request.Context(), id)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newBookingPayload(found))
}

func (handler *Handler) handleCancelBooking(ctx *gin.Context) {
	id, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request cancelRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body", false))
		return
	}
	cancelled, err := handler.payments.Cancel(ctx.Request.Context(), id, request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newBookingPayload(cancelled))
}

func (handler *Handler) handleCompleteBooking(ctx *gin.Context) {
	id, err := booking.NewBookingID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	completed, err := handler.bookings.Complete(ctx.Request.Context(), id)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newBookingPayload(completed))
}

func (handler *Handler) handleVerifyPayment(ctx *gin.Context) {
	var request verifyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body", false))
		return
	}
	reference, err := booking.NewReference(request.Reference)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	verified, err := handler.payments.Verify(requestCtx, reference)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newBookingPayload(verified))
}

// handleWebhook acknowledges every authenticated notification it could act on
// so the gateway stops retrying. Only infrastructure failures answer 500.
func (handler *Handler) handleWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, handler.cfg.MaxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, errorResponse(codeTooLarge, "webhook body too large", false))
			return
		}
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "unreadable body", false))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	_, err = handler.payments.HandleWebhook(requestCtx, body, ctx.GetHeader(handler.signatureHeader))
	switch booking.KindOf(err) {
	case "":
		ctx.JSON(http.StatusOK, gin.H{"received": true})
	case booking.KindInvalidSignature:
		ctx.JSON(http.StatusBadRequest, errorResponse(string(booking.KindInvalidSignature), "invalid webhook signature", false))
	case booking.KindInternal, booking.KindGatewayUnavailable:
		handler.logger.Error("webhook reconciliation failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(codeInternal, "webhook not processed", true))
	default:
		handler.logger.Warn("webhook acknowledged without a state change", zap.String("error_kind", string(booking.KindOf(err))), zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"received": true})
	}
}
