package core

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	Label string
	Old   string
	New   string
}

func TestEmailMessage_Render(t *testing.T) {
	conf := &Config{AppName: "Klubhaus", FrontendBaseURL: "http://localhost:8080", TestMode: true}

	msg := &EmailMessage{
		To:           []mail.Address{{Name: "Anna", Address: "anna@st.ovgu.de"}, {Address: "ben@st.ovgu.de"}},
		TemplateName: "modification-accepted",
		TemplateData: map[string]interface{}{
			"first_name": "Anna",
			"changes":    []change{{Label: "Last name", Old: "Schmidt", New: "<Meyer>"}},
			"note":       "welcome",
		},
	}
	require.NoError(t, msg.Render(conf))
	assert.Contains(t, msg.TextContent, "Hi Anna")
	assert.Contains(t, msg.TextContent, "Last name: Schmidt -> <Meyer>")
	assert.Contains(t, msg.TextContent, "welcome")
	assert.Contains(t, msg.HTMLContent, "&lt;Meyer&gt;", "html is escaped")
	assert.True(t, msg.HasContent())
	assert.Equal(t, "anna@st.ovgu.de, ben@st.ovgu.de", msg.Recipients())

	plain := &EmailMessage{BodyStr: "lol"}
	require.NoError(t, plain.Render(conf))
	assert.Equal(t, "lol", plain.TextContent)
	assert.Empty(t, plain.HTMLContent)
	assert.False(t, plain.HasRecipients())

	missing := &EmailMessage{TemplateName: "modification-rejected", TemplateData: map[string]interface{}{}}
	assert.Error(t, missing.Render(conf), "missing keys fail in test mode")

	unknown := &EmailMessage{TemplateName: "lol"}
	assert.Error(t, unknown.Render(conf))
}
