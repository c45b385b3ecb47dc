package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/user"
	emailsvc "github.com/farafmb/klubhaus/services/email"
)

var linkRegex = regexp.MustCompile(`https?://\S+\?uid=[\w-]+&token=[\w-]+`)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

// resetDB drops every row & forgets the sent e-mails.
func resetDB(t *testing.T) {
	t.Helper()
	db.Reset()
	emailsvc.TakeSentMessages()
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	token, err := app.GenerateToken(usr)
	require.NoError(t, err, "GenerateToken()")
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	require.NoError(t, err, "marchallObj()")
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	require.NoError(t, err, "marchallList()")
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	assert.NoError(t, err, "jsonBytesEqual()")
	assert.True(t, ok, "data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
}

// uidAndToken extracts the uid/token pair from the link of an account e-mail.
func uidAndToken(t *testing.T, msg core.EmailMessage) (string, string) {
	t.Helper()
	link := linkRegex.FindString(msg.TextContent)
	require.NotEmpty(t, link, "no account link in %q", msg.TextContent)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("uid"), u.Query().Get("token")
}
