package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/huntyio/membership/app/repository"
)

// MembershipController serves read-only payment and subscription lookups
type MembershipController struct {
	payments      repository.PaymentRepository
	subscriptions repository.SubscriptionRepository
}

// NewMembershipController creates a read API controller with repositories
func NewMembershipController(payments repository.PaymentRepository, subscriptions repository.SubscriptionRepository) *MembershipController {
	return &MembershipController{
		payments:      payments,
		subscriptions: subscriptions,
	}
}

// HandleGetPayments looks a payment up by processor id or lists a user's payments
func (mc *MembershipController) HandleGetPayments(c *fiber.Ctx) error {
	if raw := strings.TrimSpace(c.Query("payment_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "payment_id must be a positive integer"})
		}
		payment, err := mc.payments.GetByTreliPaymentID(c.UserContext(), id)
		if err != nil {
			return mc.internalError(c, "payment lookup", err)
		}
		if payment == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Payment not found"})
		}
		return c.JSON(payment)
	}

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "payment_id or user_id is required"})
	}
	payments, err := mc.payments.ListByUserID(c.UserContext(), userID)
	if err != nil {
		return mc.internalError(c, "payment list", err)
	}
	return c.JSON(fiber.Map{"user_id": userID, "payments": payments})
}

// HandleGetSubscription returns the subscription row of a user
func (mc *MembershipController) HandleGetSubscription(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user_id"))
	sub, err := mc.subscriptions.GetByUserID(c.UserContext(), userID)
	if err != nil {
		return mc.internalError(c, "subscription lookup", err)
	}
	if sub == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Subscription not found"})
	}
	return c.JSON(sub)
}

// HandleGetHuntySubscription returns the active paid plan of a user
func (mc *MembershipController) HandleGetHuntySubscription(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user_id"))
	st, err := mc.subscriptions.GetHuntyStatus(c.UserContext(), userID)
	if err != nil {
		return mc.internalError(c, "hunty subscription lookup", err)
	}
	if st == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No active Hunty subscription"})
	}
	return c.JSON(st)
}

func (mc *MembershipController) internalError(c *fiber.Ctx, op string, err error) error {
	log.Errorf("[API] %s failed: %v", op, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
}
