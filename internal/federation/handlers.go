package federation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/puzzlefed/puzzlefed/internal/httperr"
	"github.com/puzzlefed/puzzlefed/internal/puzzles"
	"github.com/puzzlefed/puzzlefed/internal/store"
)

const sessionMaxAge = 86400 * 14

func (s *Server) handleIndex(e echo.Context) error {
	host := e.Request().Host

	return e.JSON(http.StatusOK, map[string]any{
		"title":        s.cfg.Title,
		"description":  s.cfg.Description,
		"group":        s.registry.OwnGroup(),
		"redirectUrl":  fmt.Sprintf("https://%s/fedapi/auth/redirect", host),
		"authoriseUrl": fmt.Sprintf("https://%s/fedapi/auth/authorise", host),
	})
}

// handleAuthorise issues a grant to a logged-in local user who wants to
// act on the named peer, then sends them to that peer's callback. No
// outbound calls happen here; an unauthenticated caller is bounced to our
// own login page with the query preserved so the frontend can resume.
func (s *Server) handleAuthorise(e echo.Context) error {
	clientID := e.QueryParam("client_id")
	state := e.QueryParam("state")

	target, err := strconv.Atoi(clientID)
	if err != nil {
		return httperr.New(http.StatusBadRequest, "invalid_request", "You must provide a client_id.")
	}

	if target == s.registry.OwnGroup() {
		return httperr.New(http.StatusBadRequest, "You cannot authorise as an OAuth2 user for this server - log in normally.", "")
	}

	user, err := s.currentUser(e)
	if err != nil {
		return err
	}
	if user == nil {
		return e.Redirect(http.StatusFound,
			fmt.Sprintf("%s/oauth?client_id=%d%s", s.cfg.FrontendBase, target, optionalState(state)))
	}

	grant, err := s.grants.IssueOrReuse(user.UserID, target)
	if err != nil {
		return fmt.Errorf("could not issue grant: %w", err)
	}

	s.logger.Info("issuing grant", "user", user.UserID, "target", target)

	peer, ok := s.registry.Lookup(target)
	if !ok {
		return fmt.Errorf("no peer configured for group %d", target)
	}

	code := url.QueryEscape(grant.Secret)
	if peer.Redirect != "" {
		return e.Redirect(http.StatusFound,
			fmt.Sprintf("%s/%s/%d?code=%s%s", peer.BaseURL, strings.Trim(peer.Redirect, "/"), s.registry.OwnGroup(), code, optionalState(state)))
	}

	return e.Redirect(http.StatusFound,
		fmt.Sprintf("%s/fedapi/auth/redirect/%d?code=%s%s", peer.BaseURL, s.registry.OwnGroup(), code, optionalState(state)))
}

// handleToken is the inbound token exchange: a peer presents its shared
// secret and a grant one of our users authorized, and receives an access
// token for that user. Validation fails fast; the first violation wins.
func (s *Server) handleToken(e echo.Context) error {
	clientID := e.FormValue("client_id")
	clientSecret := e.FormValue("client_secret")
	grantType := e.FormValue("grant_type")
	code := e.FormValue("code")

	target, err := strconv.Atoi(clientID)
	if err != nil {
		return httperr.NewViolation(http.StatusBadRequest, 0, "invalid_client", "You must provide a valid group number from 10-19.")
	}

	if clientSecret == "" {
		return httperr.NewViolation(http.StatusUnauthorized, target, "unauthorized_client", "You must provide a server authentication token.")
	}

	if !ValidGroupNo(target) {
		return httperr.NewViolation(http.StatusBadRequest, 0, "invalid_client", "You must provide a valid group number from 10-19.")
	}

	peer, ok := s.registry.Lookup(target)
	if !ok {
		// Our misconfiguration, not the caller's fault.
		return fmt.Errorf("failed to find auth token for server %d", target)
	}

	if peer.Secret != clientSecret {
		return httperr.NewViolation(http.StatusForbidden, target, "unauthorized_client", fmt.Sprintf("Supplied token is not correct for %d.", target))
	}

	if grantType != "authorization_code" {
		return httperr.NewViolation(http.StatusBadRequest, target, "unsupported_grant_type", "Only authorization_code is supported.")
	}

	if code == "" {
		return httperr.NewViolation(http.StatusBadRequest, target, "invalid_grant", "Bad Grant: Not valid format.")
	}

	userID, ok := s.grants.Redeem(target, code)
	if !ok {
		return httperr.NewViolation(http.StatusForbidden, target, "invalid_grant", "")
	}

	token, err := Token(s.cfg.TokenLength)
	if err != nil {
		return fmt.Errorf("could not mint access token: %w", err)
	}

	if err := s.store.SaveOAuthToken(e.Request().Context(), userID, target, token); err != nil {
		return fmt.Errorf("could not persist access token: %w", err)
	}

	s.logger.Info("issuing access_token", "user", userID, "target", target)

	return e.JSON(http.StatusOK, map[string]any{
		"access_token": token,
	})
}

// handleRedirect completes a federated login: one of our visitors comes
// back from the peer that authorized them, carrying a grant we exchange
// for an access token, fetch their remote profile with, and link to a
// local shadow account.
func (s *Server) handleRedirect(e echo.Context) error {
	ctx := e.Request().Context()

	groupFrom, err := strconv.Atoi(e.Param("id"))
	if err != nil {
		return httperr.NewViolation(http.StatusBadRequest, 0, "invalid_request", "You must provide a valid group number from 10-19.")
	}
	if !ValidGroupNo(groupFrom) {
		return httperr.NewViolation(http.StatusBadRequest, 0, "invalid_request", "You must provide a valid group number from 10-19.")
	}

	code := e.QueryParam("code")
	if code == "" {
		return httperr.NewViolation(http.StatusBadRequest, groupFrom, "invalid_grant", "Bad Grant: Not valid format.")
	}

	peer, ok := s.registry.Lookup(groupFrom)
	if !ok {
		return fmt.Errorf("no peer configured for group %d", groupFrom)
	}
	own := s.registry.Own()

	form := url.Values{
		"client_id":     {strconv.Itoa(s.registry.OwnGroup())},
		"client_secret": {own.Secret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	}

	result, err := s.peers.Request(ctx, "POST", peer.BaseURL+"/fedapi/auth/token", form, "")
	if err != nil {
		var upstream *httperr.Error
		if errors.As(err, &upstream) {
			s.logger.Warn("grant exchange rejected upstream", "group", groupFrom, "code", upstream.Code, "desc", upstream.Desc)
			return err
		}
		return httperr.New(http.StatusInternalServerError, "FailedToExchange",
			fmt.Sprintf("Failed to exchange grant for token. Error not following OAuth: %s", err))
	}

	accessToken, _ := result["access_token"].(string)
	if accessToken == "" {
		return httperr.NewViolation(http.StatusInternalServerError, groupFrom, "NoCode", "Upstream server didn't provide an error or an OAuth code.")
	}

	profileURL := fmt.Sprintf("%s/fedapi/user?client_id=%d", peer.BaseURL, s.registry.OwnGroup())
	profile, err := s.peers.Request(ctx, "GET", profileURL, nil, accessToken)
	if err != nil {
		var upstream *httperr.Error
		if errors.As(err, &upstream) {
			return err
		}
		return httperr.New(http.StatusInternalServerError, "UpstreamFailed",
			fmt.Sprintf("Failed to fetch user profile: %s", err))
	}

	username, email, externalID, group, ok := parseProfile(profile)
	if !ok || group != groupFrom {
		// The peer must vouch for a user whose home group matches the
		// group we contacted; anything else could be impersonation.
		return httperr.NewViolation(http.StatusBadRequest, groupFrom, "invalid_request",
			"Upstream server responded with a malformed user object that does not comply with the fedapi spec")
	}

	sessionToken, err := Token(s.cfg.TokenLength)
	if err != nil {
		return fmt.Errorf("could not mint session token: %w", err)
	}

	if _, err := s.store.UpsertExternalUser(ctx, groupFrom, externalID, username, email, accessToken, sessionToken); err != nil {
		return err
	}

	sess, err := session.Get(sessionName, e)
	if err != nil {
		return err
	}
	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	sess.Values = map[any]any{}
	sess.Values["authorization"] = sessionToken
	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return err
	}

	return e.Redirect(http.StatusFound, s.cfg.FrontendBase+"/browser")
}

// parseProfile validates the remote user object: username, id, email and
// group are all required, username must be a non-empty string and group a
// well-formed group number.
func parseProfile(m map[string]any) (username, email, externalID string, group int, ok bool) {
	username, _ = m["username"].(string)
	email, _ = m["email"].(string)
	if username == "" || email == "" {
		return "", "", "", 0, false
	}

	switch t := m["id"].(type) {
	case string:
		externalID = t
	case float64:
		externalID = strconv.FormatFloat(t, 'f', -1, 64)
	}
	if externalID == "" {
		return "", "", "", 0, false
	}

	g, isNum := m["group"].(float64)
	if !isNum || !ValidGroupNo(int(g)) {
		return "", "", "", 0, false
	}

	return username, email, externalID, int(g), true
}

// handleUser serves the bearer-authenticated profile of a user we
// previously issued an access token for.
func (s *Server) handleUser(e echo.Context) error {
	token := bearerToken(e.Request().Header.Get("Authorization"))
	if token == "" {
		return httperr.New(http.StatusUnauthorized, "Unauthorized", "You cannot access that resource - please authenticate (FedAPI).")
	}

	user, err := s.store.UserByFedToken(e.Request().Context(), token)
	if err != nil {
		return err
	}
	if user == nil {
		return httperr.New(http.StatusUnauthorized, "Unauthorized", "You cannot access that resource - please authenticate (FedAPI).")
	}

	return e.JSON(http.StatusOK, map[string]any{
		"username": user.Username,
		"id":       user.UserID,
		"group":    s.registry.OwnGroup(),
		"email":    user.Email,
	})
}

// handleSudoku lists puzzles across the federation, merged with the local
// catalog per the group filter.
func (s *Server) handleSudoku(e echo.Context) error {
	qp := e.QueryParams()

	f := puzzles.Filters{
		Difficulties: parseIntList(qp["difficulty"]),
		Ratings:      parseIntList(qp["ratings"]),
		Username:     e.QueryParam("username"),
		AllTypes:     qp.Has("all"),
		Offset:       intOrDefault(e.QueryParam("offset"), puzzles.DefaultOffset),
		Limit:        intOrDefault(e.QueryParam("limit"), puzzles.DefaultLimit),
	}

	if g := e.QueryParam("group"); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil {
			// Unparseable group degrades to a local-only listing.
			n = s.registry.OwnGroup()
		}
		f.Group = &n
	}

	list, err := s.agg.List(e.Request().Context(), f)
	if err != nil {
		return err
	}

	return e.JSON(http.StatusOK, list)
}

// currentUser resolves the caller's session cookie to a local user, or
// nil when they are not logged in.
func (s *Server) currentUser(e echo.Context) (*store.User, error) {
	sess, err := session.Get(sessionName, e)
	if err != nil {
		return nil, nil
	}

	token, _ := sess.Values["authorization"].(string)
	if token == "" {
		return nil, nil
	}

	return s.store.UserBySessionToken(e.Request().Context(), token)
}

func optionalState(state string) string {
	if state == "" {
		return ""
	}
	return "&state=" + url.QueryEscape(state)
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 6 && strings.EqualFold(header[:6], "bearer") {
		header = header[6:]
	}
	return strings.TrimSpace(header)
}

// parseIntList accepts both repeated query parameters and JSON-array
// strings like "[1,2,3]"; anything non-integer is dropped.
func parseIntList(values []string) []int {
	var out []int
	for _, v := range values {
		v = strings.TrimSpace(v)
		if n, err := strconv.Atoi(v); err == nil {
			out = append(out, n)
			continue
		}

		var arr []any
		if err := json.Unmarshal([]byte(v), &arr); err != nil {
			continue
		}
		for _, item := range arr {
			if f, ok := item.(float64); ok && f == math.Trunc(f) {
				out = append(out, int(f))
			}
		}
	}
	return out
}

func intOrDefault(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
