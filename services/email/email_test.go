package emailsvc

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/tests"
)

func newMessage(address string) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Anna Schmidt", Address: address}},
		Subject:      "Pending modification requests",
		TemplateName: "modification-admin-notification",
		TemplateData: map[string]interface{}{
			"first_name": "Anna",
			"amount":     3,
			"action_url": "http://localhost:8080/modifications",
		},
	}
}

func TestConsoleService(t *testing.T) {
	svc := NewConsoleServiceMock(testutil.NewConfig())
	TakeSentMessages()

	derrs := svc.SendMessages(
		newMessage("anna@st.ovgu.de"),
		newMessage("ben@st.ovgu.de"),
		&core.EmailMessage{Subject: "nobody to send to", BodyStr: "lol"},
	)
	assert.Empty(t, derrs)

	msgs := TakeSentMessages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].TextContent, "there are 3 pending modification requests")
	assert.Contains(t, msgs[0].HTMLContent, "http://localhost:8080/modifications")
	assert.Empty(t, SentMessages())

	body := consoleService{subjPrefix: "[Klubhaus] "}.format(msgs[0])
	assert.Contains(t, body, "Subject: [Klubhaus] Pending modification requests\r\n")
	assert.Contains(t, body, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, body, "text/html; charset=utf-8")

	derrs = svc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: "anna@st.ovgu.de"}},
		TemplateName: "lol",
	})
	require.Len(t, derrs, 1)
	assert.Equal(t, "anna@st.ovgu.de", derrs[0].Recipient)
}

func TestSendgridService(t *testing.T) {
	defer func(orig func(rest.Request) (*rest.Response, error)) { sendgridAPI = orig }(sendgridAPI)

	var (
		mu       sync.Mutex
		requests []rest.Request
	)
	sendgridAPI = func(req rest.Request) (*rest.Response, error) {
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		switch {
		case strings.Contains(string(req.Body), "refused@"):
			return &rest.Response{StatusCode: http.StatusBadRequest, Body: `{"errors":[{"message":"invalid"}]}`}, nil
		case strings.Contains(string(req.Body), "down@"):
			return nil, errors.New("connection refused")
		}
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	conf := testutil.NewConfig()
	conf.SendgridApiKey = "sg-key"
	svc := NewSendgridService(conf)

	derrs := svc.SendMessages(newMessage("anna@st.ovgu.de"), newMessage("refused@st.ovgu.de"), newMessage("down@st.ovgu.de"))
	require.Len(t, derrs, 2)
	byRecipient := make(map[string]core.DeliveryError, len(derrs))
	for _, derr := range derrs {
		byRecipient[derr.Recipient] = derr
	}
	assert.Equal(t, http.StatusBadRequest, byRecipient["refused@st.ovgu.de"].Code)
	assert.Contains(t, byRecipient["down@st.ovgu.de"].Message, "connection refused")

	require.Len(t, requests, 3)
	req := requests[0]
	assert.Equal(t, rest.Method(http.MethodPost), req.Method)
	assert.Equal(t, "https://api.sendgrid.com/v3/mail/send", req.BaseURL)
	assert.Equal(t, "Bearer sg-key", req.Headers["Authorization"])

	var payload struct {
		Personalizations []struct {
			Subject string `json:"subject"`
		} `json:"personalizations"`
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "[Klubhaus] Pending modification requests", payload.Personalizations[0].Subject)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, "text/html", payload.Content[1].Type)
}

func TestCheckResponse(t *testing.T) {
	msg := newMessage("anna@st.ovgu.de")
	assert.Nil(t, checkResponse(msg, &rest.Response{StatusCode: http.StatusAccepted}))

	derr := checkResponse(msg, &rest.Response{StatusCode: http.StatusUnauthorized, Body: "bad key"})
	require.NotNil(t, derr)
	assert.Equal(t, core.DeliveryError{Recipient: "anna@st.ovgu.de", Code: http.StatusUnauthorized, Message: "bad key"}, *derr)
}
