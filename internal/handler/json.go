package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/angkor-mart/storefront/internal/domain/auth"
	"github.com/angkor-mart/storefront/internal/domain/category"
	"github.com/angkor-mart/storefront/internal/domain/coupon"
	"github.com/angkor-mart/storefront/internal/domain/order"
	"github.com/angkor-mart/storefront/internal/domain/product"
	"github.com/angkor-mart/storefront/internal/domain/review"
	"github.com/angkor-mart/storefront/internal/domain/user"
	"github.com/angkor-mart/storefront/internal/identity"
	"github.com/angkor-mart/storefront/pkg/httpmiddleware"
)

const maxBodySize = 1 << 20

// requestError is a malformed request. Its message is returned to the
// client as is.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// Money renders a decimal amount as a JSON number with two decimals.
type Money decimal.Decimal

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

func money(d decimal.Decimal) Money { return Money(d.Round(2)) }

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	return readJSON(r, v, true)
}

// decodeLenient reads a JSON body into v and ignores fields v does not
// declare. Used for bodies that carry client-side copies of server data.
func decodeLenient(r *http.Request, v any) error {
	return readJSON(r, v, false)
}

func readJSON(r *http.Request, v any, strict bool) error {
	d := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if strict {
		d.DisallowUnknownFields()
	}
	if err := d.Decode(v); err != nil {
		return badRequest("invalid body: %s", strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	httpmiddleware.WriteError(w, status, message)
}

// fail maps a domain error to its HTTP status. Unexpected errors are logged
// and answered with a generic message.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		message = "internal server error"
	}
	writeError(w, status, message)
}

func classify(err error) (int, string) {
	var (
		malformed     *requestError
		productField  *product.InvalidFieldError
		categoryField *category.InvalidFieldError
		couponField   *coupon.InvalidFieldError
		authField     *auth.InvalidFieldError
		userField     *user.InvalidFieldError
		customer      *order.InvalidCustomerError
		quantity      *order.InvalidQuantityError
		missing       *order.ProductNotFoundError
		stock         *order.OutOfStockError
		notApplicable *order.CouponNotApplicableError
		transition    *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, malformed.msg
	case errors.As(err, &productField):
		return http.StatusBadRequest, productField.Error()
	case errors.As(err, &categoryField):
		return http.StatusBadRequest, categoryField.Error()
	case errors.As(err, &couponField):
		return http.StatusBadRequest, couponField.Error()
	case errors.As(err, &authField):
		return http.StatusBadRequest, authField.Error()
	case errors.As(err, &userField):
		return http.StatusBadRequest, userField.Error()
	case errors.As(err, &customer):
		return http.StatusBadRequest, customer.Error()
	case errors.Is(err, order.ErrEmptyItems), errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, review.ErrInvalidRating):
		return http.StatusBadRequest, rootMessage(err)

	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, rootMessage(err)

	case errors.Is(err, review.ErrNotOwner):
		return http.StatusForbidden, rootMessage(err)

	case errors.Is(err, product.ErrNotFound), errors.Is(err, category.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound), errors.Is(err, order.ErrNotFound),
		errors.Is(err, review.ErrNotFound), errors.Is(err, user.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound, rootMessage(err)

	case errors.Is(err, product.ErrSlugTaken), errors.Is(err, category.ErrSlugTaken),
		errors.Is(err, category.ErrInUse), errors.Is(err, coupon.ErrAlreadyExists),
		errors.Is(err, auth.ErrSetupDone), errors.Is(err, order.ErrConflict):
		return http.StatusConflict, rootMessage(err)

	case errors.As(err, &quantity):
		return http.StatusUnprocessableEntity, quantity.Error()
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, missing.Error()
	case errors.As(err, &stock):
		return http.StatusUnprocessableEntity, stock.Error()
	case errors.As(err, &notApplicable):
		return http.StatusUnprocessableEntity, notApplicable.Reason.Message()
	case errors.As(err, &transition):
		return http.StatusUnprocessableEntity, transition.Error()
	case errors.Is(err, order.ErrPaymentConfirmationRequired), errors.Is(err, order.ErrAmountMismatch),
		errors.Is(err, order.ErrOrderTooLarge):
		return http.StatusUnprocessableEntity, rootMessage(err)
	}
	return http.StatusInternalServerError, ""
}

// rootMessage returns the message of the innermost wrapped error, which for
// domain sentinels is the customer-facing text.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func decodeBytes(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("invalid body: %s", strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}
