package emailsvc

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
)

// ConsoleService prints every message as a MIME document instead of sending it.
type ConsoleService struct {
	from            mail.Address
	subjPrefix      string
	frontendBaseURL string
	std             *log.Logger // nil disables output
	logger          core.Logger
	sync            bool

	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*ConsoleService)(nil)

func NewConsoleService(conf *core.Config, std *log.Logger, logger core.Logger) *ConsoleService {
	return &ConsoleService{
		from:            conf.DefaultFromEmail(),
		subjPrefix:      "[" + conf.AppName + "] ",
		frontendBaseURL: conf.FrontendBaseURL,
		std:             std,
		logger:          logger,
	}
}

// NewConsoleServiceMock returns a silent service that sends synchronously and
// keeps the sent messages for inspection.
func NewConsoleServiceMock(conf *core.Config, logger core.Logger) *ConsoleService {
	svc := NewConsoleService(conf, nil, logger)
	svc.sync = true
	return svc
}

func (svc *ConsoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.sync {
			svc.sendMessage(msg)
		} else {
			go svc.sendMessage(msg)
		}
	}
}

// Sent returns a copy of the messages sent so far.
func (svc *ConsoleService) Sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

func (svc *ConsoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(svc.frontendBaseURL); err != nil {
		svc.logger.Error("rendering email", errors.Wrap(err, msg.TemplateName))
		return
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}
	body, err := svc.format(*msg)
	if err != nil {
		svc.logger.Error("formatting email", err)
		return
	}
	if svc.std != nil {
		svc.std.Println(body)
	}
	svc.mu.Lock()
	svc.sent = append(svc.sent, *msg)
	svc.mu.Unlock()
}

func (svc *ConsoleService) format(msg core.EmailMessage) (string, error) {
	body := new(strings.Builder)
	altW := multipart.NewWriter(body)

	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.from.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "Cc: %s\r\n", joinAddresses(msg.Cc))
	}
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return "", errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
		if err != nil {
			return "", errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}
	if err = altW.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart body")
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}
