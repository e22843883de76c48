package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"

	"github.com/atulm/billdrop/pkg/models"
)

const userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleOAuthConfig builds the OAuth config for a link type. Gmail links get
// read-only mail scope, Drive links get the drive scope.
func (s *Server) googleOAuthConfig(connectType models.AccountType) (*oauth2.Config, error) {
	if !s.cfg.GoogleEnabled() {
		return nil, fmt.Errorf("google client id/secret not configured")
	}

	scopes := []string{"openid", "email", "profile"}
	switch connectType {
	case models.AccountTypeGmail:
		scopes = append(scopes, gmail.GmailReadonlyScope)
	case models.AccountTypeGoogleDrive:
		scopes = append(scopes, drive.DriveScope)
	default:
		return nil, fmt.Errorf("unsupported google link type %q", connectType)
	}

	return &oauth2.Config{
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		RedirectURL:  s.cfg.BaseURL + "/connect/google/callback",
		Scopes:       scopes,
		Endpoint:     googleoauth.Endpoint,
	}, nil
}

func (s *Server) handleConnectGoogle(c echo.Context) error {
	connectType := models.AccountType(c.QueryParam("type"))

	conf, err := s.googleOAuthConfig(connectType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	state := uuid.NewString()
	sess, _ := session.Get(sessionName, c)
	sess.Values["oauth_state"] = state
	sess.Values["google_connect_type"] = string(connectType)
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}

	// Offline access with forced consent, so a refresh token is issued even
	// for repeat links.
	url := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return c.Redirect(http.StatusFound, url)
}

func (s *Server) handleGoogleCallback(c echo.Context) error {
	sess, _ := session.Get(sessionName, c)
	state, _ := sess.Values["oauth_state"].(string)
	connectType, _ := sess.Values["google_connect_type"].(string)
	delete(sess.Values, "oauth_state")
	delete(sess.Values, "google_connect_type")
	_ = sess.Save(c.Request(), c.Response())

	if state == "" || c.QueryParam("state") != state {
		return echo.NewHTTPError(http.StatusBadRequest, "state mismatch")
	}

	conf, err := s.googleOAuthConfig(models.AccountType(connectType))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	tok, err := conf.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		s.logger.Error("google code exchange failed", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	}

	info, err := s.fetchGoogleUserinfo(c, conf, tok)
	if err != nil {
		s.logger.Error("failed to fetch google userinfo", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	}

	profile, _ := json.Marshal(models.Profile{
		Name:    info.Name,
		Email:   info.Email,
		Picture: info.Picture,
	})

	account := &models.LinkedAccount{
		UserID:      sessionUserID(c),
		AccountType: models.AccountType(connectType),
		AccountID:   info.ID,
		UserProfile: string(profile),
		ExpiresAt:   tok.Expiry,
	}
	if err := account.SetToken(tok); err != nil {
		return err
	}

	if err := s.db.UpsertLinkedAccount(ctx, account); err != nil {
		return err
	}

	s.logger.Info("linked google account", "user_id", account.UserID, "type", connectType)
	return c.Redirect(http.StatusFound, "/")
}

type googleUserinfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (s *Server) fetchGoogleUserinfo(c echo.Context, conf *oauth2.Config, tok *oauth2.Token) (*googleUserinfo, error) {
	client := conf.Client(c.Request().Context(), tok)
	client.Timeout = 15 * time.Second

	resp, err := client.Get(userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info googleUserinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return &info, nil
}

// zohoOAuthConfig builds the OAuth config for Zoho Mail linking.
func (s *Server) zohoOAuthConfig() (*oauth2.Config, error) {
	if !s.cfg.ZohoEnabled() {
		return nil, fmt.Errorf("zoho client id/secret not configured")
	}
	return &oauth2.Config{
		ClientID:     s.cfg.ZohoClientID,
		ClientSecret: s.cfg.ZohoClientSecret,
		RedirectURL:  s.cfg.BaseURL + "/connect/zoho/callback",
		Scopes: []string{
			"VirtualOffice.folders.READ",
			"VirtualOffice.messages.READ",
			"VirtualOffice.attachments.READ",
			"VirtualOffice.accounts.READ",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.cfg.ZohoAuthURL,
			TokenURL: s.cfg.ZohoTokenURL,
		},
	}, nil
}

func (s *Server) handleConnectZoho(c echo.Context) error {
	conf, err := s.zohoOAuthConfig()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	state := uuid.NewString()
	sess, _ := session.Get(sessionName, c)
	sess.Values["oauth_state"] = state
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}

	url := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return c.Redirect(http.StatusFound, url)
}

// handleZohoCallback completes the Zoho flow. The exchanged token is not
// persisted yet: there is no Zoho mail client binding to use it with.
func (s *Server) handleZohoCallback(c echo.Context) error {
	sess, _ := session.Get(sessionName, c)
	state, _ := sess.Values["oauth_state"].(string)
	delete(sess.Values, "oauth_state")
	_ = sess.Save(c.Request(), c.Response())

	if state == "" || c.QueryParam("state") != state {
		return echo.NewHTTPError(http.StatusBadRequest, "state mismatch")
	}

	conf, err := s.zohoOAuthConfig()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := conf.Exchange(c.Request().Context(), c.QueryParam("code")); err != nil {
		s.logger.Error("zoho code exchange failed", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	}

	s.logger.Warn("zoho account authorized but not linked; mail client binding is not implemented")
	return redirectWithMessage(c, "/", "Zoho linking is not available yet")
}
