package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/empowerfin/auth-service/internal/api/dto"
	"github.com/empowerfin/auth-service/internal/auth"
	"github.com/empowerfin/auth-service/internal/service"
	apperrors "github.com/empowerfin/auth-service/pkg/util/errorutil"
)

// Responses that must not vary with account existence.
const (
	forgotPasswordMessage     = "If this email exists, a reset link has been sent"
	resendVerificationMessage = "If this email belongs to an unverified account, a verification link has been sent"
)

// AuthHandler exposes the credential endpoints under /api/auth.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		return err
	}

	message := "User registered successfully. Please check your email to verify your account."
	if res.User.EmailVerified {
		message = "User registered successfully"
	}
	return c.Status(http.StatusCreated).JSON(authResponse(message, res))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(authResponse("Login successful", res))
}

// ForgotPassword handles POST /api/auth/forgot-password.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	h.auth.ForgotPassword(c.UserContext(), req.Email)
	return c.JSON(dto.MessageResponse{Message: forgotPasswordMessage})
}

// VerifyResetToken handles GET /api/auth/verify-reset-token/:token.
func (h *AuthHandler) VerifyResetToken(c *fiber.Ctx) error {
	status, err := h.auth.VerifyResetToken(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(dto.ResetTokenResponse{
		Valid:     status.Valid,
		Email:     status.Email,
		ExpiresAt: status.ExpiresAt,
	})
}

// ResetPassword handles POST /api/auth/reset-password/:token.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.ResetPassword(c.UserContext(), c.Params("token"), req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Password updated successfully"})
}

// ResendVerification handles POST /api/auth/resend-verification.
func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	h.auth.ResendVerification(c.UserContext(), req.Email)
	return c.JSON(dto.MessageResponse{Message: resendVerificationMessage})
}

// VerifyEmail handles GET /api/auth/verify-email?token=.
func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return apperrors.NewValidationError("verification token is required", nil)
	}

	alreadyVerified, err := h.auth.VerifyEmail(c.UserContext(), token)
	if err != nil {
		return err
	}
	if alreadyVerified {
		return c.JSON(dto.MessageResponse{Message: "Email is already verified"})
	}
	return c.JSON(dto.MessageResponse{Message: "Email verified successfully"})
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.auth.ChangePassword(c.UserContext(), principal.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Password changed successfully"})
}

func authResponse(message string, res *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		Message:   message,
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		User:      dto.NewUserResponse(res.User),
	}
}
