package logsvc

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/user"
)

func TestRollbarLogger(t *testing.T) {
	out := new(bytes.Buffer)
	logger := NewRollbarLogger(out, &core.Config{Env: "TEST", TestMode: true, RollbarToken: "token"})

	usr := user.User{ID: "42", FirstName: "Anna", LastName: "Schmidt", Email: "anna@st.ovgu.de"}
	other := user.User{ID: "43"}
	logger.Error("notifying subject", errors.New("boom"), map[string]interface{}{"modification_id": "7"}, usr, other)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "notifying subject", line["msg"])
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "boom", line[logrus.ErrorKey])
	assert.Equal(t, "7", line["modification_id"])
	assert.Equal(t, "42", line["user_id"], "only the first user is kept")

	out.Reset()
	logger.Debug("hidden")
	assert.Empty(t, out.String(), "debug lines need Debug")
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := NewRollbarLogger(new(bytes.Buffer), &core.Config{TestMode: true})
	err := errors.New("boom")
	usr := user.User{ID: "42"}

	args, fields := logger.prepare("msg", []interface{}{usr, err, "extra"})
	assert.Equal(t, []interface{}{"msg", err, "extra"}, args, "users are not forwarded")
	assert.Equal(t, logrus.Fields{"user_id": "42", logrus.ErrorKey: "boom"}, fields)
}
