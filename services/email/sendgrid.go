package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/heluDuyne/lingolab/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendgridService struct {
	key             string
	host            string
	from            *sgmail.Email
	subjPrefix      string
	frontendBaseURL string
	logger          core.Logger
}

var _ core.EmailService = (*SendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) *SendgridService {
	from := conf.DefaultFromEmail()
	return &SendgridService{
		key:             conf.SendgridApiKey,
		host:            sendgridHost,
		from:            sgmail.NewEmail(from.Name, from.Address),
		subjPrefix:      "[" + conf.AppName + "] ",
		frontendBaseURL: conf.FrontendBaseURL,
		logger:          logger,
	}
}

func (svc *SendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() { _ = svc.sendMessage(msg) }()
	}
}

func (svc *SendgridService) sendMessage(msg *core.EmailMessage) error {
	if err := msg.Render(svc.frontendBaseURL); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
		return err
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	return svc.send(*msg)
}

func (svc *SendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgEmail(cc))
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

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (svc *SendgridService) send(msg core.EmailMessage) error {
	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, svc.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("sendgrid responded %d: %s", res.StatusCode, res.Body)
		svc.logger.Error("sending email", err)
		return err
	}
	return nil
}
