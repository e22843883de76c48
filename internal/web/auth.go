package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/atulm/billdrop/internal/database"
	"github.com/atulm/billdrop/pkg/models"
)

func (s *Server) handleLoginPage(c echo.Context) error {
	if sessionUserID(c) != "" {
		return c.Redirect(http.StatusFound, "/")
	}
	return c.Render(http.StatusOK, "login.gohtml", map[string]any{
		"Message": c.QueryParam("msg"),
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	if sessionUserID(c) != "" {
		return c.Redirect(http.StatusFound, "/")
	}

	email := c.FormValue("email")
	password := c.FormValue("password")
	remember := c.FormValue("remember") == "remember_true"

	user, err := s.db.GetUserByEmail(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return redirectWithMessage(c, "/login", "Email and password did not match")
		}
		return err
	}

	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return redirectWithMessage(c, "/login", "Email and password did not match")
	}

	if err := s.db.TouchUserLogin(c.Request().Context(), user.ID); err != nil {
		s.logger.Error("failed to update last login", "user_id", user.ID, "error", err)
	}

	sess, _ := session.Get(sessionName, c)
	sess.Options.HttpOnly = true
	sess.Options.Path = "/"
	if remember {
		sess.Options.MaxAge = 30 * 24 * 60 * 60
	}
	sess.Values["user_id"] = user.ID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}

	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) handleSignupPage(c echo.Context) error {
	if sessionUserID(c) != "" {
		return c.Redirect(http.StatusFound, "/")
	}
	return c.Render(http.StatusOK, "signup.gohtml", map[string]any{
		"Message": c.QueryParam("msg"),
	})
}

func (s *Server) handleSignup(c echo.Context) error {
	name := c.FormValue("name")
	email := c.FormValue("email")
	password := c.FormValue("password")
	if name == "" || email == "" || password == "" {
		return redirectWithMessage(c, "/signup", "All fields are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := &models.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.db.CreateUser(c.Request().Context(), user); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return redirectWithMessage(c, "/signup", "User already exists")
		}
		return err
	}

	return redirectWithMessage(c, "/login", "User created successfully")
}

func (s *Server) handleLogout(c echo.Context) error {
	sess, _ := session.Get(sessionName, c)
	sess.Options.MaxAge = -1
	delete(sess.Values, "user_id")
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/login")
}

func (s *Server) handleHome(c echo.Context) error {
	accounts, err := s.db.GetAccountsForUser(c.Request().Context(), sessionUserID(c))
	if err != nil {
		return err
	}

	type accountView struct {
		Account  *models.LinkedAccount
		Profile  models.Profile
		TypeName string
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			Account:  a,
			Profile:  a.Profile(),
			TypeName: accountTypeName(a.AccountType),
		})
	}

	return c.Render(http.StatusOK, "home.gohtml", map[string]any{
		"Accounts": views,
	})
}

func accountTypeName(t models.AccountType) string {
	switch t {
	case models.AccountTypeGmail:
		return "Gmail"
	case models.AccountTypeZoho:
		return "Zoho Mail"
	case models.AccountTypeGoogleDrive:
		return "Google Drive"
	default:
		return string(t)
	}
}

func redirectWithMessage(c echo.Context, path, msg string) error {
	return c.Redirect(http.StatusFound, path+"?msg="+url.QueryEscape(msg))
}
