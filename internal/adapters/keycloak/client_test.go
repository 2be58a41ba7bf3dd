package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phonegate/phonegate/internal/domain/identity"
)

const (
	testRealm        = "phonegate"
	testClientID     = "phonegate-api"
	testClientSecret = "api-secret"
	testUserSecret   = "SMS_AUTH_ONLY"
)

// fakeUser serializes like Keycloak's UserRepresentation: attributes are
// multi-valued on the way out even though this service writes single values.
type fakeUser struct {
	ID         string              `json:"id"`
	Username   string              `json:"username"`
	Enabled    bool                `json:"enabled"`
	Email      string              `json:"email"`
	Attributes map[string][]string `json:"attributes"`

	roles map[string]bool
}

// fakeKeycloak emulates the subset of Keycloak the client touches: the token
// endpoint for both realms and the admin user/role endpoints.
type fakeKeycloak struct {
	srv *httptest.Server

	users      map[string]*fakeUser // keyed by username
	realmRoles []identity.RoleRef

	tokenRequests []map[string]string
	lastPutBody   map[string]any
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	f := &fakeKeycloak{
		users: map[string]*fakeUser{},
		realmRoles: []identity.RoleRef{
			{ID: uuid.NewString(), Name: "user"},
			{ID: uuid.NewString(), Name: "guest"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/{realm}/protocol/openid-connect/token", f.handleToken)
	mux.HandleFunc("GET /admin/realms/"+testRealm+"/users", f.handleSearchUsers)
	mux.HandleFunc("POST /admin/realms/"+testRealm+"/users", f.handleCreateUser)
	mux.HandleFunc("PUT /admin/realms/"+testRealm+"/users/{id}", f.handleUpdateUser)
	mux.HandleFunc("GET /admin/realms/"+testRealm+"/roles", f.handleRoles)
	mux.HandleFunc("POST /admin/realms/"+testRealm+"/users/{id}/role-mappings/realm", f.handleRoleMapping)
	mux.HandleFunc("DELETE /admin/realms/"+testRealm+"/users/{id}/role-mappings/realm", f.handleRoleMapping)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeKeycloak) addUser(username string, attrs map[string]string, roles ...string) *fakeUser {
	u := &fakeUser{
		ID:         uuid.NewString(),
		Username:   username,
		Enabled:    true,
		Attributes: map[string][]string{},
		roles:      map[string]bool{},
	}
	for k, v := range attrs {
		u.Attributes[k] = []string{v}
	}
	for _, r := range roles {
		u.roles[r] = true
	}
	f.users[username] = u
	return u
}

// clientID pulls the OAuth client id from Basic auth or the form body,
// whichever the library chose for this endpoint.
func clientID(r *http.Request) string {
	if id, _, ok := r.BasicAuth(); ok && id != "" {
		return id
	}
	return r.FormValue("client_id")
}

func (f *fakeKeycloak) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	record := map[string]string{
		"realm":      r.PathValue("realm"),
		"client_id":  clientID(r),
		"grant_type": r.FormValue("grant_type"),
		"username":   r.FormValue("username"),
		"password":   r.FormValue("password"),
		"scope":      r.FormValue("scope"),
	}
	f.tokenRequests = append(f.tokenRequests, record)

	writeGrant := func(access string) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"expires_in":300,"refresh_token":"refresh-1","token_type":"Bearer"}`, access)
	}
	writeOAuthError := func(status int, code, desc string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":%q,"error_description":%q}`, code, desc)
	}

	switch r.FormValue("grant_type") {
	case "client_credentials":
		writeGrant("service-token")
	case "refresh_token":
		if r.FormValue("refresh_token") != "refresh-1" {
			writeOAuthError(http.StatusBadRequest, "invalid_grant", "Token is not active")
			return
		}
		writeGrant("refreshed-token")
	case "password":
		if record["realm"] == "master" {
			writeGrant("admin-token")
			return
		}
		if record["username"] == "guest-account" && record["password"] == "guest-secret" {
			writeGrant("guest-token")
			return
		}
		u, ok := f.users[record["username"]]
		if !ok || record["password"] != testUserSecret {
			writeOAuthError(http.StatusUnauthorized, "invalid_grant", "Invalid user credentials")
			return
		}
		writeGrant("user-token-" + u.Username)
	default:
		writeOAuthError(http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func (f *fakeKeycloak) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	out := []*fakeUser{}
	if u, ok := f.users[r.URL.Query().Get("username")]; ok {
		out = append(out, u)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (f *fakeKeycloak) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, exists := f.users[body.Username]; exists {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"errorMessage":"User exists with same username"}`)
		return
	}
	f.addUser(body.Username, body.Attributes)
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeKeycloak) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.lastPutBody = body

	for _, u := range f.users {
		if u.ID == r.PathValue("id") {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (f *fakeKeycloak) handleRoles(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(f.realmRoles)
}

func (f *fakeKeycloak) handleRoleMapping(w http.ResponseWriter, r *http.Request) {
	var refs []identity.RoleRef
	if err := json.NewDecoder(r.Body).Decode(&refs); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, u := range f.users {
		if u.ID != r.PathValue("id") {
			continue
		}
		for _, ref := range refs {
			if r.Method == http.MethodDelete {
				delete(u.roles, ref.Name)
			} else {
				u.roles[ref.Name] = true
			}
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (f *fakeKeycloak) newClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Config{
		BaseURL:       f.srv.URL,
		Realm:         testRealm,
		ClientID:      testClientID,
		ClientSecret:  testClientSecret,
		AdminUser:     "admin",
		AdminPassword: "admin-pass",
		UserSecret:    testUserSecret,
		GuestUsername: "guest-account",
		GuestSecret:   "guest-secret",
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Realm: testRealm, ClientID: "x", ClientSecret: "y"})
	assert.ErrorContains(t, err, "base URL")

	_, err = NewClient(context.Background(), Config{BaseURL: "http://x", ClientID: "x", ClientSecret: "y"})
	assert.ErrorContains(t, err, "realm")

	_, err = NewClient(context.Background(), Config{BaseURL: "http://x", Realm: testRealm})
	assert.ErrorContains(t, err, "client credentials")
}

func TestIssueUserToken(t *testing.T) {
	fake := newFakeKeycloak(t)
	fake.addUser("79991234567", nil, "user")
	c := fake.newClient(t)

	grant, err := c.IssueUserToken(context.Background(), "+79991234567")
	require.NoError(t, err)

	assert.Equal(t, "user-token-79991234567", grant.AccessToken)
	assert.Equal(t, "refresh-1", grant.RefreshToken)
	assert.Equal(t, "Bearer", grant.TokenType)
	assert.Equal(t, int64(300), grant.ExpiresIn)

	require.Len(t, fake.tokenRequests, 1)
	req := fake.tokenRequests[0]
	assert.Equal(t, testRealm, req["realm"])
	assert.Equal(t, "password", req["grant_type"])
	assert.Equal(t, "79991234567", req["username"], "leading + must be stripped")
	assert.Equal(t, testUserSecret, req["password"])
	assert.Equal(t, "openid", req["scope"])
}

func TestIssueGuestToken(t *testing.T) {
	fake := newFakeKeycloak(t)
	c := fake.newClient(t)

	grant, err := c.IssueGuestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "guest-token", grant.AccessToken)

	req := fake.tokenRequests[0]
	assert.Equal(t, "guest-account", req["username"])
	assert.Equal(t, "guest-secret", req["password"])
}

func TestIssueUserToken_BadCredentials(t *testing.T) {
	fake := newFakeKeycloak(t)
	c := fake.newClient(t)

	_, err := c.IssueUserToken(context.Background(), "70000000000")
	require.Error(t, err)

	idpErr, ok := identity.AsIdPError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_grant", idpErr.Code)
	assert.Equal(t, "Invalid user credentials", idpErr.Description)
	assert.Equal(t, http.StatusUnauthorized, idpErr.Status)
}

func TestRefresh(t *testing.T) {
	fake := newFakeKeycloak(t)
	c := fake.newClient(t)

	grant, err := c.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-token", grant.AccessToken)
	assert.Equal(t, "refresh_token", fake.tokenRequests[0]["grant_type"])
}

func TestRefresh_ExpiredToken(t *testing.T) {
	fake := newFakeKeycloak(t)
	c := fake.newClient(t)

	_, err := c.Refresh(context.Background(), "stale")
	require.Error(t, err)

	idpErr, ok := identity.AsIdPError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_grant", idpErr.Code)
	assert.Equal(t, "Token is not active", idpErr.Description)
}

func TestUserExists(t *testing.T) {
	fake := newFakeKeycloak(t)
	// Attributes come back as value lists; the lookup must decode that shape.
	fake.addUser("79991234567", map[string]string{"phone": "79991234567"})
	c := fake.newClient(t)

	exists, err := c.UserExists(context.Background(), "+79991234567")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.UserExists(context.Background(), "70000000000")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, "client_credentials", fake.tokenRequests[0]["grant_type"])
}

func TestCreateUser(t *testing.T) {
	fake := newFakeKeycloak(t)
	c := fake.newClient(t)

	err := c.CreateUser(context.Background(), "+79991234567")
	require.NoError(t, err)

	u, ok := fake.users["79991234567"]
	require.True(t, ok)
	assert.Equal(t, []string{"user_79991234567"}, u.Attributes["user_id"])
	assert.Equal(t, []string{"79991234567"}, u.Attributes["phone"])

	// Creation authenticates as the master realm admin, not the service client.
	req := fake.tokenRequests[0]
	assert.Equal(t, "master", req["realm"])
	assert.Equal(t, "admin-cli", req["client_id"])
	assert.Equal(t, "admin", req["username"])
}

func TestCreateUser_Conflict(t *testing.T) {
	fake := newFakeKeycloak(t)
	fake.addUser("79991234567", nil)
	c := fake.newClient(t)

	err := c.CreateUser(context.Background(), "79991234567")
	require.Error(t, err)

	idpErr, ok := identity.AsIdPError(err)
	require.True(t, ok)
	assert.True(t, idpErr.IsConflict())
	assert.Equal(t, "User exists with same username", idpErr.Description)
}

func TestAssignAndRemoveRole(t *testing.T) {
	fake := newFakeKeycloak(t)
	u := fake.addUser("79991234567", nil, "guest")
	c := fake.newClient(t)

	require.NoError(t, c.AssignRole(context.Background(), "79991234567", identity.RoleUser))
	assert.True(t, u.roles["user"])

	require.NoError(t, c.RemoveRole(context.Background(), "79991234567", identity.RoleGuest))
	assert.False(t, u.roles["guest"])
	assert.True(t, u.roles["user"], "other roles untouched")
}

func TestAssignRole_UnknownRole(t *testing.T) {
	fake := newFakeKeycloak(t)
	fake.addUser("79991234567", nil)
	c := fake.newClient(t)

	err := c.AssignRole(context.Background(), "79991234567", identity.Role("operator"))
	require.Error(t, err)

	idpErr, ok := identity.AsIdPError(err)
	require.True(t, ok)
	assert.Equal(t, "role_not_found", idpErr.Code)
}

func TestAssignRole_UnknownUser(t *testing.T) {
	fake := newFakeKeycloak(t)
	c := fake.newClient(t)

	err := c.AssignRole(context.Background(), "70000000000", identity.RoleUser)
	require.Error(t, err)

	idpErr, ok := identity.AsIdPError(err)
	require.True(t, ok)
	assert.Equal(t, "user_not_found", idpErr.Code)
}

func TestUpdateAttributes_MergesWithExisting(t *testing.T) {
	fake := newFakeKeycloak(t)
	u := fake.addUser("79991234567", map[string]string{
		"phone":     "79991234567",
		"user_id":   "user_79991234567",
		"user_type": "guest",
	})
	u.Attributes["groups"] = []string{"alpha", "beta"}
	c := fake.newClient(t)

	err := c.UpdateAttributes(context.Background(), "79991234567", map[string]string{
		"user_type": "authenticated",
	})
	require.NoError(t, err)

	require.NotNil(t, fake.lastPutBody)
	attrs, ok := fake.lastPutBody["attributes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"authenticated"}, attrs["user_type"])
	assert.Equal(t, []any{"79991234567"}, attrs["phone"], "unrelated attributes preserved")
	assert.Equal(t, []any{"user_79991234567"}, attrs["user_id"])
	assert.Equal(t, []any{"alpha", "beta"}, attrs["groups"], "multi-valued attributes survive the merge whole")
}

func TestNewClient_DiscoversTokenEndpoint(t *testing.T) {
	fake := newFakeKeycloak(t)

	var issuer string
	discovery := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"issuer":%q,"token_endpoint":%q,"authorization_endpoint":%q,"jwks_uri":%q}`,
			issuer,
			fake.srv.URL+"/realms/"+testRealm+"/protocol/openid-connect/token",
			issuer+"/authorize",
			issuer+"/jwks")
	}))
	t.Cleanup(discovery.Close)
	issuer = discovery.URL

	c, err := NewClient(context.Background(), Config{
		BaseURL:       "http://unused.invalid",
		Realm:         testRealm,
		ClientID:      testClientID,
		ClientSecret:  testClientSecret,
		GuestUsername: "guest-account",
		GuestSecret:   "guest-secret",
		DiscoveryURL:  discovery.URL + "/.well-known/openid-configuration",
	})
	require.NoError(t, err)

	grant, err := c.IssueGuestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "guest-token", grant.AccessToken)
}
