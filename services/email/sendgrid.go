package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/farafmb/klubhaus/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"

	sendgridAPI = sendgrid.API // mockable
)

type sendgridService struct {
	conf       *core.Config
	key        string
	from       *sgmail.Email
	subjPrefix string
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config) core.EmailService {
	return &sendgridService{
		conf:       conf,
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) []core.DeliveryError {
	return sendAll(messages, svc.sendMessage)
}

func (svc sendgridService) sendMessage(msg *core.EmailMessage) *core.DeliveryError {
	if err := msg.Render(svc.conf); err != nil {
		return &core.DeliveryError{Recipient: msg.Recipients(), Message: fmt.Sprintf("rendering email: %v", err)}
	}
	if !(msg.HasRecipients() && msg.HasContent()) {
		return nil
	}

	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(*msg))

	res, err := sendgridAPI(req)
	if err != nil {
		return &core.DeliveryError{Recipient: msg.Recipients(), Message: err.Error()}
	}
	return checkResponse(msg, res)
}

// checkResponse turns a refusal of the provider into a DeliveryError.
func checkResponse(msg *core.EmailMessage, res *rest.Response) *core.DeliveryError {
	if res.StatusCode >= http.StatusBadRequest {
		return &core.DeliveryError{Recipient: msg.Recipients(), Code: res.StatusCode, Message: res.Body}
	}
	return nil
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}
