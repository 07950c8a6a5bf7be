package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type signInRequest struct {
	Email       string `json:"email"`
	AccessToken string `json:"access_token"`
}

type signInResponse struct {
	Token string `json:"token"`
}

// SignIn exchanges an email + access token pair for a session token.
func (s *APIV1Service) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	if req.Email == "" || req.AccessToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and access_token are required")
	}

	token, err := s.auth.SignIn(c.Request().Context(), req.Email, req.AccessToken)
	if err != nil {
		return echo.ErrUnauthorized
	}
	return c.JSON(http.StatusOK, &signInResponse{Token: token})
}
