package emailsvc

import (
	"fmt"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/farafmb/klubhaus/core"
)

var (
	sentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

// SentMessages returns the messages the console services sent so far.
func SentMessages() []core.EmailMessage {
	mu.Lock()
	defer mu.Unlock()
	return append([]core.EmailMessage{}, sentMessages...)
}

// TakeSentMessages returns the messages sent so far and forgets them.
func TakeSentMessages() []core.EmailMessage {
	mu.Lock()
	defer mu.Unlock()
	msgs := sentMessages
	sentMessages = make([]core.EmailMessage, 0)
	return msgs
}

// consoleService writes messages to the logger instead of sending them.
type consoleService struct {
	conf             *core.Config
	logger           core.Logger
	defaultFromEmail mail.Address
	subjPrefix       string
	disableOutput    bool
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		conf:             conf,
		logger:           logger,
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
	}
}

// NewConsoleServiceMock records messages without printing them.
func NewConsoleServiceMock(conf *core.Config) core.EmailService {
	return &consoleService{
		conf:             conf,
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
		disableOutput:    true,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) []core.DeliveryError {
	return sendAll(messages, svc.sendMessage)
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) *core.DeliveryError {
	if err := msg.Render(svc.conf); err != nil {
		return &core.DeliveryError{Recipient: msg.Recipients(), Message: fmt.Sprintf("rendering email: %v", err)}
	}
	if !(msg.HasRecipients() && msg.HasContent()) {
		return nil
	}

	body := svc.format(*msg)
	if !svc.disableOutput && svc.logger != nil {
		svc.logger.Info(body)
	}

	mu.Lock()
	sentMessages = append(sentMessages, *msg)
	mu.Unlock()
	return nil
}

// format renders msg as a multipart/alternative MIME message.
func (svc consoleService) format(msg core.EmailMessage) string {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	}

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	if w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}}); err == nil {
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)
	}
	if msg.HTMLContent != "" {
		if w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}}); err == nil {
			_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
		}
	}
	_ = altW.Close()
	return body.String()
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// sendAll sends every message concurrently and waits for all of them.
func sendAll(messages []*core.EmailMessage, send func(msg *core.EmailMessage) *core.DeliveryError) []core.DeliveryError {
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []core.DeliveryError
	)
	for _, msg := range messages {
		wg.Add(1)
		go func(msg *core.EmailMessage) {
			defer wg.Done()
			if derr := send(msg); derr != nil {
				errMu.Lock()
				errs = append(errs, *derr)
				errMu.Unlock()
			}
		}(msg)
	}
	wg.Wait()
	return errs
}
