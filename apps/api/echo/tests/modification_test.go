package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farafmb/klubhaus/core/modification"
	"github.com/farafmb/klubhaus/core/user"
	emailsvc "github.com/farafmb/klubhaus/services/email"
	"github.com/farafmb/klubhaus/tests"
)

func decodeModification(t *testing.T, body []byte) modification.Modification {
	t.Helper()
	var mod modification.Modification
	require.NoError(t, json.Unmarshal(body, &mod), string(body))
	return mod
}

func propose(t *testing.T, usr user.User, p user.Profile) modification.Modification {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPut, "/api/users/me", getToken(t, usr), marchallObj(t, p))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeModification(t, rec.Body.Bytes())
}

func Test_userApi_proposeMe(t *testing.T) {
	resetDB(t)

	member := testutil.CreateUser(t, usrRepo, "Hero", "Held", "hero@st.ovgu.de", "", user.MemberRoles, true)
	testutil.CreateUser(t, usrRepo, "Taken", "Taken", "taken@st.ovgu.de", "", user.MemberRoles, true)
	token := getToken(t, member)

	profile := func(edit func(p *user.Profile)) []byte {
		p := member.Profile()
		edit(&p)
		return marchallObj(t, p)
	}

	tests := []httpTest{
		{name: "auth required", body: profile(func(p *user.Profile) {}), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid phone", token: token, wantCode: http.StatusBadRequest,
			body: profile(func(p *user.Profile) { p.Phone = "0170 1234" }),
			wantData: marchallObj(t, map[string]string{
				"phone": "enter a valid mobile number, starting with a plus sign and a country code followed by digits only",
			}),
		},
		{
			name: "blank first name", token: token, wantCode: http.StatusBadRequest,
			body:     profile(func(p *user.Profile) { p.FirstName = "   " }),
			wantData: marchallObj(t, map[string]string{"first_name": "this field cannot be blank"}),
		},
		{
			name: "no changes", token: token, wantCode: http.StatusBadRequest,
			body:     profile(func(p *user.Profile) { p.FirstName = "  Hero " }),
			wantData: marchallObj(t, httpErr{Error: modification.ErrNoChangesSubmitted.Error()}),
		},
		{
			name: "e-mail taken", token: token, wantCode: http.StatusBadRequest,
			body:     profile(func(p *user.Profile) { p.Email = "taken@st.ovgu.de" }),
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, "/api/users/me", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	mods, err := modRepo.QueryModifications(context.Background(), modification.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, mods, "rejected proposals are not stored")

	t.Run("filling empty fields is accepted at once", func(t *testing.T) {
		p := member.Profile()
		p.Phone = "+4917012345"
		p.Faculty = "fmb"
		mod := propose(t, member, p)

		assert.Equal(t, modification.Accepted, mod.State)
		assert.False(t, mod.DecidedAt.IsZero())
		assert.Empty(t, mod.DecidedBy)
		assert.Equal(t, modification.Diff{
			{Field: "phone", Change: modification.Change{Old: "", New: "+4917012345"}},
			{Field: "faculty", Change: modification.Change{Old: "", New: "FMB"}},
		}, mod.Content)

		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: member.ID})
		require.NoError(t, err)
		assert.Equal(t, "+4917012345", usr.Phone)
		assert.Equal(t, "FMB", usr.Faculty)
		assert.Empty(t, emailsvc.TakeSentMessages(), "auto-accepted changes are not notified")
	})

	t.Run("changing a value waits for a decision", func(t *testing.T) {
		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: member.ID})
		require.NoError(t, err)
		p := usr.Profile()
		p.LastName = "Heldin"
		mod := propose(t, usr, p)

		assert.Equal(t, modification.Requested, mod.State)
		assert.True(t, mod.DecidedAt.IsZero())
		assert.Equal(t, modification.Diff{{Field: "last_name", Change: modification.Change{Old: "Held", New: "Heldin"}}}, mod.Content)

		usr, err = usrRepo.GetUser(context.Background(), user.GetFilter{ID: member.ID})
		require.NoError(t, err)
		assert.Equal(t, "Held", usr.LastName, "profile unchanged until accepted")
	})

	t.Run("own modifications, most recent first", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/users/me/modifications", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var mods []modification.Modification
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mods))
		require.Len(t, mods, 2)
		assert.Equal(t, modification.Requested, mods[0].State)
		assert.Equal(t, modification.Accepted, mods[1].State)
	})
}

func Test_modificationApi_query(t *testing.T) {
	resetDB(t)

	member := testutil.CreateUser(t, usrRepo, "Hero", "Held", "hero@st.ovgu.de", "", user.MemberRoles, true)
	admin := testutil.CreateUser(t, usrRepo, "Clara", "Admin", "clara@st.ovgu.de", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, admin)

	p := member.Profile()
	p.Phone = "+4917012345"
	accepted := propose(t, member, p)
	p.FirstName = "Heroine"
	pending := propose(t, member, p)

	tests := []httpTest{
		{name: "auth required", path: "/api/modifications", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/modifications", token: getToken(t, member), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "pending by default", path: "/api/modifications", token: adminToken, wantData: marchallList(t, pending)},
		{name: "by state", path: "/api/modifications?state=accepted", token: adminToken, wantData: marchallList(t, accepted)},
		{name: "all states", path: "/api/modifications?state=all", token: adminToken, wantData: marchallList(t, pending, accepted)},
		{name: "unknown state", path: "/api/modifications?state=lol", token: adminToken, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_modificationApi_retrieve(t *testing.T) {
	resetDB(t)

	member := testutil.CreateUser(t, usrRepo, "Hero", "Held", "hero@st.ovgu.de", "", user.MemberRoles, true)
	other := testutil.CreateUser(t, usrRepo, "Anna", "Schmidt", "anna@st.ovgu.de", "", user.MemberRoles, true)
	admin := testutil.CreateUser(t, usrRepo, "Clara", "Admin", "clara@st.ovgu.de", "", []string{user.RoleAdmin}, true)

	p := member.Profile()
	p.LastName = "Heldin"
	mod := propose(t, member, p)
	path := "/api/modifications/" + mod.ID

	tests := []httpTest{
		{name: "subject", path: path, token: getToken(t, member), wantCode: http.StatusOK, wantData: marchallObj(t, mod)},
		{name: "admin", path: path, token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, mod)},
		{
			name: "other member", path: path, token: getToken(t, other), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown", path: "/api/modifications/lol", token: getToken(t, admin), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_modificationApi_decide(t *testing.T) {
	resetDB(t)

	member := testutil.CreateUser(t, usrRepo, "Hero", "Held", "hero@st.ovgu.de", "", user.MemberRoles, true)
	admin := testutil.CreateUser(t, usrRepo, "Clara", "Admin", "clara@st.ovgu.de", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, admin)

	p := member.Profile()
	p.FirstName = "Heroine"
	p.Email = "heroine@st.ovgu.de"
	toAccept := propose(t, member, p)

	p = member.Profile()
	p.LastName = "Nope"
	toReject := propose(t, member, p)

	decision := func(d, note string) []byte {
		return marchallObj(t, modification.DecisionRequest{Decision: d, Note: note})
	}
	path := func(mod modification.Modification) string { return "/api/modifications/" + mod.ID + "/decision" }

	tests := []httpTest{
		{name: "auth required", path: path(toAccept), body: decision("accept", ""), wantCode: http.StatusUnauthorized},
		{
			name: "member cannot decide", path: path(toAccept), body: decision("accept", ""), token: getToken(t, member),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "unknown decision", path: path(toAccept), body: decision("maybe", ""), token: adminToken, wantCode: http.StatusBadRequest},
		{
			name: "unknown modification", path: "/api/modifications/lol/decision", body: decision("accept", ""), token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "accepted", path: path(toAccept), body: decision("accept", ""), token: adminToken, wantCode: http.StatusOK},
		{
			name: "decided only once", path: path(toAccept), body: decision("reject", ""), token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: modification.ErrInvalidState.Error()}),
		},
		{name: "rejected", path: path(toReject), body: decision("reject", "Please use your legal name."), token: adminToken, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: member.ID})
	require.NoError(t, err)
	assert.Equal(t, "Heroine", usr.FirstName)
	assert.Equal(t, "heroine@st.ovgu.de", usr.Email)
	assert.Equal(t, "Held", usr.LastName, "rejected change not applied")

	accepted, err := modRepo.GetModification(context.Background(), modification.GetFilter{ID: toAccept.ID})
	require.NoError(t, err)
	assert.Equal(t, modification.Accepted, accepted.State)
	assert.Equal(t, admin.ID, accepted.DecidedBy)

	rejected, err := modRepo.GetModification(context.Background(), modification.GetFilter{ID: toReject.ID})
	require.NoError(t, err)
	assert.Equal(t, modification.Rejected, rejected.State)
	assert.Equal(t, "Please use your legal name.", rejected.Note)

	msgs := emailsvc.TakeSentMessages()
	require.Len(t, msgs, 2)
	recipients := []string{msgs[0].To[0].Address, msgs[1].To[0].Address}
	assert.ElementsMatch(t, []string{"heroine@st.ovgu.de", "heroine@st.ovgu.de"}, recipients)
}

func Test_modificationApi_notifyAdmins(t *testing.T) {
	resetDB(t)

	member := testutil.CreateUser(t, usrRepo, "Hero", "Held", "hero@st.ovgu.de", "", user.MemberRoles, true)
	admin := testutil.CreateUser(t, usrRepo, "Clara", "Admin", "clara@st.ovgu.de", "", []string{user.RoleAdmin}, true)
	testutil.CreateUser(t, usrRepo, "Dora", "Board", "dora@st.ovgu.de", "", []string{user.RoleAdminBoard}, true)
	testutil.CreateUser(t, usrRepo, "Old", "Admin", "old@st.ovgu.de", "", []string{user.RoleAdmin}, false)
	adminToken := getToken(t, admin)

	notify := func() modification.NotifyResult {
		req, rec := newAuthRequest(http.MethodPost, "/api/modifications/notify-admins", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res modification.NotifyResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		return res
	}

	assert.Equal(t, modification.NotifyResult{}, notify(), "nothing pending, nothing sent")
	assert.Empty(t, emailsvc.TakeSentMessages())

	p := member.Profile()
	p.LastName = "Heldin"
	propose(t, member, p)

	assert.Equal(t, modification.NotifyResult{Pending: 1, Sent: 2}, notify())
	msgs := emailsvc.TakeSentMessages()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		assert.NotEqual(t, "old@st.ovgu.de", msg.To[0].Address, "inactive admins are skipped")
		assert.Contains(t, msg.TextContent, conf.FrontendBaseURL+"/modifications")
	}
}
